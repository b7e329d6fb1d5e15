package passport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultField is the Field a Seed joins when none is configured
const DefaultField = "lawn"

// MaxEncodedSize is the largest encoded passport gossip metadata can carry
const MaxEncodedSize = 512

var (
	ErrFieldRetrieval    = errors.New("failed to retrieve field")
	ErrFieldModification = errors.New("failed to modify field")
	ErrInvalidPassport   = errors.New("invalid passport")
)

// Mode is the replication mode of a Field
type Mode string

const (
	// ModeQuorum replicates records to all Field members and waits for a write quorum
	ModeQuorum Mode = "quorum"
	// ModeRaft runs the Field as a raft group
	ModeRaft Mode = "raft"
)

// ParseMode parses a mode name, the empty string selects ModeQuorum
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeQuorum:
		return ModeQuorum, nil
	case ModeRaft:
		return ModeRaft, nil
	default:
		return "", fmt.Errorf("unknown replication mode %q (expected %q or %q)", s, ModeQuorum, ModeRaft)
	}
}

// Passport is the identity card of a Seed. It is gossiped to all other Seeds as
// membership metadata and taken at its word.
type Passport struct {
	SeedID  string `json:"id"`
	Field   string `json:"field"`
	RPCAddr string `json:"rpc"`
	Mode    Mode   `json:"mode"`
	Version string `json:"v,omitempty"`
}

// New creates a passport with a fresh Seed ID. An empty field selects DefaultField.
func New(field, rpcAddr string, mode Mode) *Passport {
	if field == "" {
		field = DefaultField
	}
	if mode == "" {
		mode = ModeQuorum
	}
	return &Passport{
		SeedID:  uuid.NewString(),
		Field:   field,
		RPCAddr: rpcAddr,
		Mode:    mode,
	}
}

// FieldName returns the Field of the Seed
func (p *Passport) FieldName() (string, error) {
	if p.Field == "" {
		return "", ErrFieldRetrieval
	}
	return p.Field, nil
}

// SetField moves the Seed to another Field. The passport is unchanged on error.
func (p *Passport) SetField(field string) error {
	if field == "" {
		return ErrFieldModification
	}
	p.Field = field
	return nil
}

// Validate checks that all fields required for gossip are set
func (p *Passport) Validate() error {
	switch {
	case p.SeedID == "":
		return fmt.Errorf("%w: missing seed id", ErrInvalidPassport)
	case p.Field == "":
		return fmt.Errorf("%w: %w", ErrInvalidPassport, ErrFieldRetrieval)
	case p.RPCAddr == "":
		return fmt.Errorf("%w: missing rpc address", ErrInvalidPassport)
	}
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPassport, err)
	}
	return nil
}

// Marshal encodes the passport for gossip
func (p *Passport) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if len(b) > MaxEncodedSize {
		return nil, fmt.Errorf("%w: encoded size %d exceeds %d bytes", ErrInvalidPassport, len(b), MaxEncodedSize)
	}
	return b, nil
}

// Unmarshal decodes and validates a passport received through gossip
func Unmarshal(b []byte) (*Passport, error) {
	var p Passport
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPassport, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Passport) String() string {
	return fmt.Sprintf("Seed{id=%s, field=%s, rpc=%s, mode=%s}", p.SeedID, p.Field, p.RPCAddr, p.Mode)
}
