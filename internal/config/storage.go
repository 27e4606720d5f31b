package config

type Storage struct {
	SQLite    *SQLiteStorage    `mapstructure:"sqlite,omitempty"`
	Firestore *FirestoreStorage `mapstructure:"firestore,omitempty"`
	Memory    bool              `mapstructure:"memory,omitempty"`
}

type SQLiteStorage struct {
	Path string `mapstructure:"path,omitempty"`
}

type FirestoreStorage struct {
	ProjectID string `mapstructure:"project_id,omitempty"`
	// Optional service account file; default application credentials otherwise.
	CredentialsFile string `mapstructure:"credentials_file,omitempty"`
}
