package models

// StorageType names a tenant object store provider.
type StorageType string

const (
	StorageAWS   StorageType = "aws"
	StorageGCP   StorageType = "gcp"
	StorageAzure StorageType = "azure"
)

// Workspace is an owner-of-data tenant. Arbitrary-server columns hold base64 ciphertext.
type Workspace struct {
	ID               string  `db:"id" json:"id"`
	UserID           string  `db:"user_id" json:"userId"`
	WorkspaceName    string  `db:"workspace_name" json:"workspaceName"`
	UseArbitrary     bool    `db:"use_arbitrary" json:"useArbitrary"`
	DatabaseURI      *string `db:"database_uri" json:"-"`
	StorageType      *string `db:"storage_type" json:"-"`
	StorageAccessKey *string `db:"storage_access_key" json:"-"`
	StorageSecretKey *string `db:"storage_secret_key" json:"-"`
	StorageRegion    *string `db:"storage_region" json:"-"`
	StorageURL       *string `db:"storage_url" json:"-"`
	StorageBucket    *string `db:"storage_bucket" json:"-"`
	AuditColumns
}

// HasArbitraryBlock reports whether any arbitrary-server column is populated.
func (w *Workspace) HasArbitraryBlock() bool {
	for _, f := range []*string{w.DatabaseURI, w.StorageType, w.StorageAccessKey, w.StorageSecretKey, w.StorageRegion, w.StorageURL, w.StorageBucket} {
		if f != nil && *f != "" {
			return true
		}
	}
	return false
}

// ArbitraryServer is the decrypted arbitrary-server block.
type ArbitraryServer struct {
	DatabaseURI string      `json:"databaseUri" validate:"required"`
	StorageType StorageType `json:"storageType" validate:"required,oneof=aws gcp azure"`
	AccessKey   string      `json:"accessKey" validate:"required_unless=StorageType azure"`
	SecretKey   string      `json:"secretKey" validate:"required"`
	Region      string      `json:"region" validate:"required_if=StorageType aws"`
	URL         string      `json:"url" validate:"required_if=StorageType gcp"`
	Bucket      string      `json:"bucket" validate:"required_unless=StorageType azure"`
}

// MissingFields lists the fields required by the storage type that are empty.
func (a ArbitraryServer) MissingFields() []string {
	var missing []string
	check := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	check("databaseUri", a.DatabaseURI)
	switch a.StorageType {
	case StorageAWS:
		check("region", a.Region)
		check("accessKey", a.AccessKey)
		check("secretKey", a.SecretKey)
		check("bucket", a.Bucket)
	case StorageGCP:
		check("url", a.URL)
		check("bucket", a.Bucket)
		check("accessKey", a.AccessKey)
		check("secretKey", a.SecretKey)
	case StorageAzure:
		check("secretKey", a.SecretKey)
	default:
		missing = append(missing, "storageType")
	}
	return missing
}

// ArbitraryServerView is the redacted block returned to owners.
type ArbitraryServerView struct {
	UseArbitrary bool        `json:"useArbitrary"`
	StorageType  StorageType `json:"storageType,omitempty"`
	Region       string      `json:"region,omitempty"`
	URL          string      `json:"url,omitempty"`
	Bucket       string      `json:"bucket,omitempty"`
	HasDatabase  bool        `json:"hasDatabase"`
	HasSecret    bool        `json:"hasSecret"`
}
