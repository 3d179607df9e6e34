package nft

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medalchain/internal/chain"
)

func TestDecodePointer(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))

	tests := []struct {
		name string
		raw  string
		kind string
		url  string
	}{
		{
			name: "backend server",
			raw:  `{"storageType":"backend-server","path":"a.jpg","serverUrl":"http://h"}`,
			kind: StorageBackendServer,
			url:  "http://h/a.jpg",
		},
		{
			name: "single separator",
			raw:  `{"storageType":"backend-server","path":"/nft-images/b.png","type":"image/png","serverUrl":"https://img.example.com/"}`,
			kind: StorageBackendServer,
			url:  "https://img.example.com/nft-images/b.png",
		},
		{
			name: "unknown storage type",
			raw:  `{"storageType":"ipfs","path":"Qm123"}`,
			kind: "unknown",
			url:  "",
		},
		{
			name: "malformed json",
			raw:  `{"storageType":`,
			kind: "unknown",
			url:  "",
		},
		{
			name: "absolute path rejected",
			raw:  `{"storageType":"backend-server","path":"http://evil/x.png"}`,
			kind: "unknown",
			url:  "",
		},
		{
			name: "legacy data url",
			raw:  "data:image/gif;base64,R0lGODlh",
			kind: "legacy-data-url",
			url:  "data:image/gif;base64,R0lGODlh",
		},
		{
			name: "legacy base64",
			raw:  png,
			kind: "legacy-base64",
			url:  "data:image/png;base64," + png,
		},
		{
			name: "empty",
			raw:  "",
			kind: "unknown",
			url:  "",
		},
		{
			name: "garbage",
			raw:  "not a pointer!",
			kind: "unknown",
			url:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DecodePointer(tt.raw)
			require.NotNil(t, p)
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.url, p.URL())
		})
	}
}

func TestParsePointerErrors(t *testing.T) {
	_, err := ParsePointer("plain text")
	assert.ErrorIs(t, err, chain.ErrMetadataDecode)

	_, err = ParsePointer(`{"storageType":"s3","path":"a.jpg"}`)
	assert.ErrorIs(t, err, chain.ErrMetadataDecode)

	_, err = ParsePointer(`{"storageType":"backend-server","path":""}`)
	assert.ErrorIs(t, err, chain.ErrValidation)

	_, err = ParsePointer(`{"storageType":"backend-server","path":"https://cdn/x.png"}`)
	assert.ErrorIs(t, err, chain.ErrValidation)
}

func TestBackendServerEncode(t *testing.T) {
	p, err := NewBackendServer("/nft-images/c.webp", "image/webp", "http://h")
	require.NoError(t, err)

	raw, err := p.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"storageType":"backend-server","path":"/nft-images/c.webp","type":"image/webp","serverUrl":"http://h"}`, raw)

	back, err := ParsePointer(raw)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestBackendServerWithoutServerIsRelative(t *testing.T) {
	assert.Equal(t, "/nft-images/d.png", BackendServer{Path: "/nft-images/d.png"}.URL())
}
