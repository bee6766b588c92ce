package config

const (
	// MaxTitleLength is the maximum length for document and thread titles.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxTitleLength = 255

	// MaxMessageContentLength bounds the text body of a single message.
	MaxMessageContentLength = 100_000

	// MaxSummaryLength bounds Update and MessageResolution summaries.
	MaxSummaryLength = 2_000

	// MaxFlaggedVersionNameLength is the maximum length for flagged version names.
	MaxFlaggedVersionNameLength = 255

	// MaxAttachments is the maximum number of attachments on one message.
	MaxAttachments = 32

	// MaxPayloadBytes is the default upper bound for one content address payload (8 MiB).
	MaxPayloadBytes = 8 << 20

	// MaxMarkerLabelLength bounds timeline marker labels.
	MaxMarkerLabelLength = 255
)
