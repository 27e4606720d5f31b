// Package apple renders signed .pkpass bundles from a pass template
// directory. The template and signing material are loaded once at startup;
// Render specializes a copy of the template per attendee.
package apple

import (
	"archive/zip"
	"bytes"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.mozilla.org/pkcs7"

	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/utils"
)

const passFilename = "pass.json"

type Renderer struct {
	cfg config.AppleWalletConfig

	// Static template contents, pass.json excluded.
	assets map[string][]byte
	// Raw template pass.json; re-parsed per render so bundles never share
	// mutable state.
	passJSON []byte

	signerCert *x509.Certificate
	signerKey  *rsa.PrivateKey
	wwdr       *x509.Certificate

	logger *slog.Logger
}

// NewRenderer loads the .pass template folder and the signing certificates.
// Call once at process start; the renderer is read-only afterwards.
func NewRenderer(cfg config.AppleWalletConfig) (*Renderer, error) {
	r := &Renderer{
		cfg:    cfg,
		assets: make(map[string][]byte),
		logger: slog.With("component", "applewallet"),
	}

	entries, err := os.ReadDir(cfg.TemplateFolder)
	if err != nil {
		return nil, fmt.Errorf("pass template folder: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(cfg.TemplateFolder, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("pass template file %s: %w", entry.Name(), err)
		}
		if entry.Name() == passFilename {
			r.passJSON = data
		} else {
			r.assets[entry.Name()] = data
		}
	}
	if r.passJSON == nil {
		return nil, fmt.Errorf("pass template folder %s has no %s", cfg.TemplateFolder, passFilename)
	}

	if r.wwdr, err = loadCertificate(cfg.WWDRPath); err != nil {
		return nil, fmt.Errorf("WWDR certificate: %w", err)
	}
	if r.signerCert, err = loadCertificate(cfg.SignerCertPath); err != nil {
		return nil, fmt.Errorf("signer certificate: %w", err)
	}
	if r.signerKey, err = loadPrivateKey(cfg.SignerKeyPath, cfg.SignerKeyPassphrase); err != nil {
		return nil, fmt.Errorf("signer key: %w", err)
	}

	r.logger.Info("Apple Wallet template initialized",
		"template", cfg.TemplateFolder, "assets", len(r.assets))
	return r, nil
}

// Render produces a signed .pkpass for one attendee. The serial number is
// derived from the email the same way the issuance flow derives it, so the
// web service can resolve the pass back to its ticket.
func (r *Renderer) Render(email, name, code string, boothVisited int) ([]byte, error) {
	passData, err := r.buildPassJSON(email, name, code, boothVisited)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte, len(r.assets)+3)
	for name, data := range r.assets {
		files[name] = data
	}
	files[passFilename] = passData

	manifest, err := buildManifest(files)
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifest

	signature, err := r.sign(manifest)
	if err != nil {
		return nil, err
	}
	files["signature"] = signature

	return zipBundle(files)
}

func (r *Renderer) buildPassJSON(email, name, code string, boothVisited int) ([]byte, error) {
	var pass map[string]any
	if err := json.Unmarshal(r.passJSON, &pass); err != nil {
		return nil, fmt.Errorf("template %s: %w", passFilename, err)
	}

	pass["formatVersion"] = 1
	pass["serialNumber"] = utils.Serial(email)
	pass["teamIdentifier"] = r.cfg.TeamIdentifier
	pass["passTypeIdentifier"] = r.cfg.PassTypeIdentifier
	pass["organizationName"] = r.cfg.OrganizationName
	pass["description"] = r.cfg.Description
	if r.cfg.WebServiceURL != "" {
		pass["webServiceURL"] = r.cfg.WebServiceURL
		pass["authenticationToken"] = r.cfg.AuthToken
	}

	pass["barcodes"] = []map[string]any{{
		"format":          "PKBarcodeFormatQR",
		"message":         code,
		"messageEncoding": "iso-8859-1",
	}}

	ticket, _ := pass["eventTicket"].(map[string]any)
	if ticket == nil {
		ticket = make(map[string]any)
	}
	secondary, _ := ticket["secondaryFields"].([]any)
	ticket["secondaryFields"] = append(secondary,
		map[string]any{
			"key":           "full_name",
			"label":         "Name",
			"value":         name,
			"textAlignment": "PKTextAlignmentLeft",
		},
		map[string]any{
			"key":           "code",
			"label":         "Ticket",
			"value":         code,
			"textAlignment": "PKTextAlignmentRight",
		},
	)
	auxiliary, _ := ticket["auxiliaryFields"].([]any)
	ticket["auxiliaryFields"] = append(auxiliary,
		map[string]any{
			"key":   "booth_visited",
			"label": "Booths visited",
			"value": boothVisited,
		},
	)
	pass["eventTicket"] = ticket

	return json.Marshal(pass)
}

// buildManifest maps every bundle file to its SHA-1 digest, per the pkpass
// format.
func buildManifest(files map[string][]byte) ([]byte, error) {
	manifest := make(map[string]string, len(files))
	for name, data := range files {
		sum := sha1.Sum(data)
		manifest[name] = hex.EncodeToString(sum[:])
	}
	return json.Marshal(manifest)
}

// sign produces the detached PKCS#7 signature over manifest.json, with the
// WWDR intermediate included in the chain.
func (r *Renderer) sign(manifest []byte) ([]byte, error) {
	signed, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, fmt.Errorf("pkcs7 signed data: %w", err)
	}
	signed.AddCertificate(r.wwdr)
	if err := signed.AddSigner(r.signerCert, r.signerKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("pkcs7 signer: %w", err)
	}
	signed.Detach()
	return signed.Finish()
}

func zipBundle(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

func loadPrivateKey(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	der := block.Bytes
	if x509.IsEncryptedPEMBlock(block) {
		if der, err = x509.DecryptPEMBlock(block, []byte(passphrase)); err != nil {
			return nil, fmt.Errorf("decrypt key: %w", err)
		}
	}

	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer key in %s is not RSA", path)
	}
	return key, nil
}
