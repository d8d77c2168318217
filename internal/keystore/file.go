package keystore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// fileRecord is one row of the on-disk key table: a kind tag, the
// lookup id (hw_code, proj_id, ...), and the key blob base64-encoded.
type fileRecord struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Key  string `json:"key"`
}

// File is a read-only KeyStore backed by a JSON table on disk, the
// format the CLI's --key-table flag points at.
type File struct {
	mem *Memory
}

// LoadFile reads and decodes the JSON key table at path into a File
// key store. Unknown kind tags are rejected up front so a typo in the
// table surfaces at load time, not at the first failed auth attempt.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []fileRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("keystore: parse %s: %w", path, err)
	}

	mem := NewMemory()
	for _, rec := range records {
		kind, err := parseKind(rec.Kind)
		if err != nil {
			return nil, fmt.Errorf("keystore: %s: %w", path, err)
		}
		key, err := base64.StdEncoding.DecodeString(rec.Key)
		if err != nil {
			return nil, fmt.Errorf("keystore: %s: id %q: bad base64 key: %w", path, rec.ID, err)
		}
		mem.Set(kind, rec.ID, key)
	}
	return &File{mem: mem}, nil
}

// Lookup implements KeyStore.
func (f *File) Lookup(kind KeyKind, id string) ([]byte, bool) {
	return f.mem.Lookup(kind, id)
}

func parseKind(s string) (KeyKind, error) {
	switch s {
	case "hw_code":
		return KindHwCode, nil
	case "proj_id":
		return KindProjID, nil
	case "oplus_vip":
		return KindOplusVIP, nil
	case "xiaomi_provider":
		return KindXiaomiProvider, nil
	default:
		return 0, fmt.Errorf("unknown key kind %q", s)
	}
}
