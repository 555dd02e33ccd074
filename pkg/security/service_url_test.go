package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateServiceURL(t *testing.T) {
	strict := ServiceURLOptions{}
	dev := ServiceURLOptions{AllowHTTP: true, AllowLocalNetworks: true}

	tests := []struct {
		name    string
		url     string
		opts    ServiceURLOptions
		wantErr bool
	}{
		{name: "https public host", url: "https://api.example.com", opts: strict},
		{name: "https with path", url: "https://api.example.com/v1", opts: strict},
		{name: "empty", url: "", opts: dev, wantErr: true},
		{name: "http rejected by default", url: "http://api.example.com", opts: strict, wantErr: true},
		{name: "localhost rejected by default", url: "https://localhost:8000", opts: strict, wantErr: true},
		{name: "private ip rejected by default", url: "https://10.0.0.4", opts: strict, wantErr: true},
		{name: "zoned ipv6 rejected by default", url: "https://[fe80::1%25eth0]/", opts: strict, wantErr: true},
		{name: "localhost allowed in dev", url: "http://localhost:8000", opts: dev},
		{name: "zoned ipv6 allowed in dev", url: "https://[fe80::1%25eth0]/", opts: dev},
		{name: "ftp scheme", url: "ftp://api.example.com", opts: dev, wantErr: true},
		{name: "credentials", url: "https://user:pw@api.example.com", opts: dev, wantErr: true},
		{name: "query", url: "https://api.example.com?x=1", opts: dev, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceURL(tt.url, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
