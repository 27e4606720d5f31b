package config

var defaults = map[string]any{
	"log_level": "info",
	"listen":    ":8080",

	"api_key": "",

	"upstream_timeout": 10,

	"apple_wallet.team_id":               "",
	"apple_wallet.pass_type_id":          "",
	"apple_wallet.organization_name":     "Industrial Relations and Technology Transfer Center",
	"apple_wallet.description":           "Entrance ticket for Fostering Green Science and Innovation 2025",
	"apple_wallet.auth_token":            "",
	"apple_wallet.web_service_url":       "",
	"apple_wallet.template_folder":       "./templates/event.pass",
	"apple_wallet.wwdr_path":             "./certs/wwdr.pem",
	"apple_wallet.signer_cert_path":      "./certs/signerCert.pem",
	"apple_wallet.signer_key_path":       "./certs/signerKey.pem",
	"apple_wallet.signer_key_passphrase": "",
	"apple_wallet.apn_key_path":          "",
	"apple_wallet.apn_key_id":            "",
	"apple_wallet.apn_production":        true,

	"google_wallet.service_account": "",
	"google_wallet.issuer_id":       "",
	"google_wallet.class_suffix":    "event.generalAdmission",

	"email.host":     "host.docker.internal",
	"email.port":     25,
	"email.username": "",
	"email.password": "",
	"email.from":     "noreply@example.com",
	"email.subject":  "Your event ticket",

	"storage.sqlite.path": "./data/storage.db",
}

func Defaults() map[string]any {
	values := make(map[string]any)
	for k, v := range defaults {
		values[k] = v
	}
	return values
}
