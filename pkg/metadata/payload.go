// Package metadata binds a canonical address to its fingerprint and carries
// the binding alongside the clipboard text, with an in-memory fallback for
// hosts whose clipboard cannot hold a side-channel payload.
package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/grendel/clipseal/pkg/common"
	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/protocol"
)

const (
	// MetaVersion is the only payload schema version accepted
	MetaVersion = 1

	// MIMEType tags the side-channel payload on clipboards that support
	// custom formats
	MIMEType = "application/x-clipseal+json"
)

// Binding associates a canonical address with the fingerprint computed at
// copy time
type Binding struct {
	Chain       crypto.ChainTag
	Canonical   string
	Fingerprint crypto.Fingerprint
	BoundAt     time.Time
}

// payload is the wire form. Pointers distinguish missing fields from zero
// values.
type payload struct {
	MetaVersion *int             `json:"meta_version"`
	Chain       *crypto.ChainTag `json:"chain"`
	Address     *string          `json:"address"`
	Fingerprint *string          `json:"fingerprint"`
	Digest      string           `json:"digest,omitempty"`
	TS          *int64           `json:"ts"`
}

// Encode serialises a binding as a side-channel payload
func Encode(b Binding) ([]byte, error) {
	version := MetaVersion
	ts := b.BoundAt.UnixMilli()
	return json.Marshal(payload{
		MetaVersion: &version,
		Chain:       &b.Chain,
		Address:     &b.Canonical,
		Fingerprint: &b.Fingerprint.Short,
		Digest:      b.Fingerprint.Digest,
		TS:          &ts,
	})
}

// Decode parses a side-channel payload. Any parse failure, missing field,
// unknown chain or version mismatch is reported as ErrMalformedMetadata.
func Decode(data []byte) (Binding, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Binding{}, fmt.Errorf("%w: %v", protocol.ErrMalformedMetadata, err)
	}

	switch {
	case p.MetaVersion == nil, p.Chain == nil, p.Address == nil, p.Fingerprint == nil, p.TS == nil:
		return Binding{}, fmt.Errorf("%w: missing field", protocol.ErrMalformedMetadata)
	case *p.MetaVersion != MetaVersion:
		return Binding{}, fmt.Errorf("%w: meta_version %d", protocol.ErrMalformedMetadata, *p.MetaVersion)
	case *p.Address == "":
		return Binding{}, fmt.Errorf("%w: empty address", protocol.ErrMalformedMetadata)
	case !common.IsHex(*p.Fingerprint) || len(*p.Fingerprint) < crypto.MinFingerprintLength:
		return Binding{}, fmt.Errorf("%w: bad fingerprint", protocol.ErrMalformedMetadata)
	case p.Digest != "" && !common.IsHex(p.Digest):
		return Binding{}, fmt.Errorf("%w: bad digest", protocol.ErrMalformedMetadata)
	}

	return Binding{
		Chain:     *p.Chain,
		Canonical: *p.Address,
		Fingerprint: crypto.Fingerprint{
			Digest: p.Digest,
			Short:  *p.Fingerprint,
		},
		BoundAt: time.UnixMilli(*p.TS),
	}, nil
}
