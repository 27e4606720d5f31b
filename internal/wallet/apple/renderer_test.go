package apple

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"testing"

	"wallet-ticket-service/internal/config"
)

func TestBuildManifest(t *testing.T) {
	files := map[string][]byte{
		"pass.json": []byte(`{"formatVersion":1}`),
		"icon.png":  {0x89, 0x50, 0x4e, 0x47},
	}

	data, err := buildManifest(files)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}

	var manifest map[string]string
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decoding manifest: %v", err)
	}
	if len(manifest) != len(files) {
		t.Fatalf("got %d entries, want %d", len(manifest), len(files))
	}
	for name, content := range files {
		sum := sha1.Sum(content)
		if manifest[name] != hex.EncodeToString(sum[:]) {
			t.Fatalf("digest mismatch for %s: got %q", name, manifest[name])
		}
	}
}

func TestZipBundle(t *testing.T) {
	files := map[string][]byte{
		"pass.json": []byte(`{}`),
		"icon.png":  []byte("png-bytes"),
	}

	data, err := zipBundle(files)
	if err != nil {
		t.Fatalf("zip: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading zip: %v", err)
	}
	if len(reader.File) != len(files) {
		t.Fatalf("got %d files, want %d", len(reader.File), len(files))
	}
	for _, f := range reader.File {
		if _, ok := files[f.Name]; !ok {
			t.Fatalf("unexpected file %s in bundle", f.Name)
		}
	}
}

func TestBuildPassJSON(t *testing.T) {
	r := &Renderer{
		cfg: config.AppleWalletConfig{
			TeamIdentifier:     "TEAM123",
			PassTypeIdentifier: "pass.com.example.event",
			OrganizationName:   "Example Org",
			Description:        "Event ticket",
			WebServiceURL:      "https://wallet.example.com",
			AuthToken:          "secret-token",
		},
		passJSON: []byte(`{"backgroundColor":"rgb(0,0,0)","eventTicket":{"primaryFields":[{"key":"event","value":"Expo"}]}}`),
	}

	data, err := r.buildPassJSON("jane@example.com", "Jane Doe", "ABC123", 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var pass map[string]any
	if err := json.Unmarshal(data, &pass); err != nil {
		t.Fatalf("decoding pass: %v", err)
	}

	if pass["serialNumber"] != "jane_example.com" {
		t.Fatalf("serialNumber: got %v", pass["serialNumber"])
	}
	if pass["passTypeIdentifier"] != "pass.com.example.event" {
		t.Fatalf("passTypeIdentifier: got %v", pass["passTypeIdentifier"])
	}
	if pass["webServiceURL"] != "https://wallet.example.com" {
		t.Fatalf("webServiceURL: got %v", pass["webServiceURL"])
	}
	if pass["authenticationToken"] != "secret-token" {
		t.Fatalf("authenticationToken: got %v", pass["authenticationToken"])
	}
	// Template fields must survive specialization.
	if pass["backgroundColor"] != "rgb(0,0,0)" {
		t.Fatalf("template field lost: got %v", pass["backgroundColor"])
	}

	barcodes, ok := pass["barcodes"].([]any)
	if !ok || len(barcodes) != 1 {
		t.Fatalf("barcodes: got %v", pass["barcodes"])
	}
	barcode := barcodes[0].(map[string]any)
	if barcode["message"] != "ABC123" {
		t.Fatalf("barcode message: got %v", barcode["message"])
	}

	ticket := pass["eventTicket"].(map[string]any)
	if primary, ok := ticket["primaryFields"].([]any); !ok || len(primary) != 1 {
		t.Fatalf("primaryFields lost: got %v", ticket["primaryFields"])
	}
	secondary := ticket["secondaryFields"].([]any)
	if len(secondary) != 2 {
		t.Fatalf("got %d secondary fields, want 2", len(secondary))
	}
	aux := ticket["auxiliaryFields"].([]any)
	if len(aux) != 1 {
		t.Fatalf("got %d auxiliary fields, want 1", len(aux))
	}
	if aux[0].(map[string]any)["value"] != float64(2) {
		t.Fatalf("booth count: got %v", aux[0].(map[string]any)["value"])
	}
}

func TestBuildPassJSON_NoWebService(t *testing.T) {
	r := &Renderer{
		cfg:      config.AppleWalletConfig{PassTypeIdentifier: "pass.com.example.event"},
		passJSON: []byte(`{}`),
	}

	data, err := r.buildPassJSON("jane@example.com", "Jane Doe", "ABC123", 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var pass map[string]any
	if err := json.Unmarshal(data, &pass); err != nil {
		t.Fatalf("decoding pass: %v", err)
	}
	if _, ok := pass["authenticationToken"]; ok {
		t.Fatal("authenticationToken must be omitted without a web service URL")
	}
}
