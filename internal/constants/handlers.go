package constants

// Handler limits
const (
	// MaxJSONBodyBytes caps JSON request bodies; a few hundred 512-d embeddings fit comfortably
	MaxJSONBodyBytes = 4 << 20

	// MaxImageUploadBytes caps multipart image uploads
	MaxImageUploadBytes = 10 << 20
)
