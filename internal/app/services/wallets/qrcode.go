package wallets

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/muraguri00/zalora-luxury/supabase/client"
)

// QRGenerator renders a wallet address into an image reference.
type QRGenerator interface {
	Generate(ctx context.Context, address string) (string, error)
}

// DefaultQRSize is the edge length in pixels of generated codes.
const DefaultQRSize = 300

// PNGGenerator encodes addresses as black-on-white PNG data URLs.
type PNGGenerator struct {
	Size int
}

func (g PNGGenerator) png(address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("qr: empty payload")
	}
	size := g.Size
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(address, qrcode.Medium, size)
}

func (g PNGGenerator) Generate(_ context.Context, address string) (string, error) {
	data, err := g.png(address)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Bucket is the subset of the Supabase storage bucket client used for QR
// uploads.
type Bucket interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (*client.Response, error)
	GetPublicURL(path string) string
}

// BucketUploader stores generated PNGs in a storage bucket and returns their
// public URL. Object names are derived from the address.
type BucketUploader struct {
	Bucket Bucket
	Prefix string
	PNG    PNGGenerator
}

func (u BucketUploader) Generate(ctx context.Context, address string) (string, error) {
	data, err := u.PNG.png(address)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	sum := sha256.Sum256([]byte(address))
	path := hex.EncodeToString(sum[:8]) + ".png"
	if u.Prefix != "" {
		path = u.Prefix + "/" + path
	}
	resp, err := u.Bucket.Upload(ctx, path, data, "image/png")
	if err != nil {
		return "", fmt.Errorf("upload qr: %w", err)
	}
	if err := resp.Error(); err != nil {
		// An existing object for the same address is as good as a new one.
		if resp.StatusCode != http.StatusConflict {
			return "", fmt.Errorf("upload qr: %w", err)
		}
	}
	return u.Bucket.GetPublicURL(path), nil
}
