package nft

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"medalchain/internal/chain"
)

// StorageBackendServer is the only storageType tag this service writes.
const StorageBackendServer = "backend-server"

// Pointer is the decoded form of the imageData string stored on-chain. The concrete type is one of
// BackendServer, LegacyDataURL, LegacyBase64 or Unknown.
type Pointer interface {
	// URL resolves the pointer to something an image tag can load. It is empty when nothing can be resolved.
	URL() string
	// Kind names the variant for API responses.
	Kind() string
	isPointer()
}

// BackendServer points at an image served by the image server. Path is server-relative.
type BackendServer struct {
	Path      string
	MimeType  string
	ServerURL string
}

type LegacyDataURL struct {
	Raw string
}

// LegacyBase64 is a bare base64 image payload written before pointers existed.
type LegacyBase64 struct {
	Raw string
}

type Unknown struct {
	Raw string
}

type pointerJSON struct {
	StorageType string `json:"storageType"`
	Path        string `json:"path"`
	Type        string `json:"type,omitempty"`
	ServerURL   string `json:"serverUrl,omitempty"`
}

// NewBackendServer validates path and builds a backend-server pointer.
func NewBackendServer(path, mimeType, serverURL string) (BackendServer, error) {
	if err := validatePath(path); err != nil {
		return BackendServer{}, err
	}
	return BackendServer{
		Path:      path,
		MimeType:  strings.TrimSpace(mimeType),
		ServerURL: strings.TrimSpace(serverURL),
	}, nil
}

func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: image pointer path is empty", chain.ErrValidation)
	}
	if strings.Contains(path, "://") {
		return fmt.Errorf("%w: image pointer path %q must be server-relative", chain.ErrValidation, path)
	}
	return nil
}

// Encode renders the pointer as the JSON string carried on-chain.
func (p BackendServer) Encode() (string, error) {
	blob, err := json.Marshal(pointerJSON{
		StorageType: StorageBackendServer,
		Path:        p.Path,
		Type:        p.MimeType,
		ServerURL:   p.ServerURL,
	})
	if err != nil {
		return "", err
	}
	return string(blob), nil
}

// URL joins ServerURL and Path with exactly one "/". Without a server the path is returned as-is.
func (p BackendServer) URL() string {
	if p.ServerURL == "" {
		return p.Path
	}
	return strings.TrimRight(p.ServerURL, "/") + "/" + strings.TrimLeft(p.Path, "/")
}

func (p LegacyDataURL) URL() string { return p.Raw }

// URL wraps the payload in a data URL, sniffing the mime type from the decoded bytes.
func (p LegacyBase64) URL() string {
	raw, err := base64.StdEncoding.DecodeString(p.Raw)
	if err != nil || len(raw) == 0 {
		return ""
	}
	return "data:" + sniffImageType(raw) + ";base64," + p.Raw
}

func (Unknown) URL() string { return "" }

func (BackendServer) Kind() string { return StorageBackendServer }
func (LegacyDataURL) Kind() string { return "legacy-data-url" }
func (LegacyBase64) Kind() string  { return "legacy-base64" }
func (Unknown) Kind() string       { return "unknown" }

func (BackendServer) isPointer() {}
func (LegacyDataURL) isPointer() {}
func (LegacyBase64) isPointer()  {}
func (Unknown) isPointer()       {}

// ParsePointer strictly decodes a pointer JSON document. Only backend-server pointers are accepted.
func ParsePointer(raw string) (BackendServer, error) {
	var doc pointerJSON
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return BackendServer{}, fmt.Errorf("%w: %v", chain.ErrMetadataDecode, err)
	}
	if doc.StorageType != StorageBackendServer {
		return BackendServer{}, fmt.Errorf("%w: unsupported storageType %q", chain.ErrMetadataDecode, doc.StorageType)
	}
	return NewBackendServer(doc.Path, doc.Type, doc.ServerURL)
}

// DecodePointer classifies whatever was stored on-chain. It never fails: anything unrecognized becomes Unknown.
func DecodePointer(raw string) Pointer {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return Unknown{Raw: raw}
	case strings.HasPrefix(trimmed, "{"):
		p, err := ParsePointer(trimmed)
		if err != nil {
			return Unknown{Raw: raw}
		}
		return p
	case strings.HasPrefix(trimmed, "data:"):
		return LegacyDataURL{Raw: trimmed}
	}
	if b, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(b) > 0 {
		return LegacyBase64{Raw: trimmed}
	}
	return Unknown{Raw: raw}
}

func sniffImageType(b []byte) string {
	ct := http.DetectContentType(b)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/png"
}
