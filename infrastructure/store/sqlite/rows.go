package sqlite

import (
	"tzrecorder/domain/logrecord"
	"tzrecorder/domain/message"
)

// messageInsert is the named-parameter shape for inserting a message
// record, mirroring atlasdb's map[string]any NamedExec style
// (db/atlasdb/db.go SaveAccount).
type messageInsert struct {
	ConnectionID uint64 `db:"connection_id"`
	NodeName     string `db:"node_name"`
	PeerAddr     string `db:"peer_addr"`
	Incoming     int    `db:"incoming"`
	Source       string `db:"source"`
	TS           int64  `db:"ts"`
	ChunkIDFrom  uint64 `db:"chunk_id_from"`
	ChunkIDTo    uint64 `db:"chunk_id_to"`
	Kind         string `db:"kind"`
	Preview      string `db:"preview"`
	Ciphertext   []byte `db:"ciphertext"`
	Plaintext    []byte `db:"plaintext"`
	DecodeErr    string `db:"decode_err"`
}

func messageRow(m message.Message) messageInsert {
	return messageInsert{
		ConnectionID: m.ConnectionID,
		NodeName:     m.NodeName,
		PeerAddr:     m.PeerAddr,
		Incoming:     boolToInt(m.Incoming),
		Source:       string(m.Source),
		TS:           m.Timestamp,
		ChunkIDFrom:  m.ChunkIDFrom,
		ChunkIDTo:    m.ChunkIDTo,
		Kind:         m.Kind.String(),
		Preview:      m.Preview,
		Ciphertext:   m.Ciphertext,
		Plaintext:    m.Plaintext,
		DecodeErr:    m.DecodeErr,
	}
}

// messageRowModel is the shape `SELECT *` from messages scans into.
type messageRowModel struct {
	ID           uint64 `db:"id"`
	ConnectionID uint64 `db:"connection_id"`
	NodeName     string `db:"node_name"`
	PeerAddr     string `db:"peer_addr"`
	Incoming     int    `db:"incoming"`
	Source       string `db:"source"`
	TS           int64  `db:"ts"`
	ChunkIDFrom  uint64 `db:"chunk_id_from"`
	ChunkIDTo    uint64 `db:"chunk_id_to"`
	Kind         string `db:"kind"`
	Preview      string `db:"preview"`
	Ciphertext   []byte `db:"ciphertext"`
	Plaintext    []byte `db:"plaintext"`
	DecodeErr    string `db:"decode_err"`
}

func (r messageRowModel) toDomain() message.Message {
	kind, _ := message.ParseKind(r.Kind)
	return message.Message{
		ID:           r.ID,
		ConnectionID: r.ConnectionID,
		NodeName:     r.NodeName,
		PeerAddr:     r.PeerAddr,
		Incoming:     r.Incoming != 0,
		Source:       message.Source(r.Source),
		Timestamp:    r.TS,
		ChunkIDFrom:  r.ChunkIDFrom,
		ChunkIDTo:    r.ChunkIDTo,
		Kind:         kind,
		Preview:      r.Preview,
		Ciphertext:   r.Ciphertext,
		Plaintext:    r.Plaintext,
		DecodeErr:    r.DecodeErr,
	}
}

type logInsert struct {
	NodeName string `db:"node_name"`
	Level    string `db:"level"`
	TS       int64  `db:"ts"`
	Section  string `db:"section"`
	Message  string `db:"message"`
}

func logRow(r logrecord.Record) logInsert {
	return logInsert{
		NodeName: r.NodeName,
		Level:    r.Level.String(),
		TS:       r.Timestamp,
		Section:  r.Section,
		Message:  r.Message,
	}
}

type logRowModel struct {
	ID       uint64 `db:"id"`
	NodeName string `db:"node_name"`
	Level    string `db:"level"`
	TS       int64  `db:"ts"`
	Section  string `db:"section"`
	Message  string `db:"message"`
}

func (r logRowModel) toDomain() logrecord.Record {
	level, _ := logrecord.ParseLevel(r.Level)
	return logrecord.Record{
		ID:        r.ID,
		NodeName:  r.NodeName,
		Level:     level,
		Timestamp: r.TS,
		Section:   r.Section,
		Message:   r.Message,
	}
}
