package constants

// Node labels
const (
	LabelPlatform            = "Platform"
	LabelAccount             = "Account"
	LabelPost                = "Post"
	LabelChunk               = "Chunk"
	LabelEntity              = "Entity"
	LabelTopic               = "Topic"
	LabelClassificationTopic = "ClassificationTopic"
	LabelMicroTopic          = "MicroTopic"
	LabelMacroTopic          = "MacroTopic"
	LabelSourceDoc           = "SourceDoc"
	LabelClaim               = "Claim"
	LabelFrame               = "Frame"
	LabelEvent               = "Event"
)

// Relationship types
const (
	RelPosted     = "POSTED"
	RelInPlatform = "IN_PLATFORM"
	RelHasChunk   = "HAS_CHUNK"
	RelMentions   = "MENTIONS"
	RelAboutTopic = "ABOUT_TOPIC"
	// RelSubTopicOf links a micro topic to the macro topic grouping it
	RelSubTopicOf  = "SUB_TOPIC_OF"
	RelAsserts     = "ASSERTS"
	RelSupportedBy = "SUPPORTED_BY"
	RelRefutedBy   = "REFUTED_BY"
	RelHasFrame    = "HAS_FRAME"
	RelPartOfEvent = "PART_OF_EVENT"
)

// Sentinels substituted for missing values so identity derivation stays total
const (
	// UnknownAuthor is the Account key used when a row has no author
	UnknownAuthor = "__unknown__"
	// UnknownClassification is the classification topic label used when a row has none
	UnknownClassification = "unknown"
	// DefaultEntityType is used when an extractor returns an entity without a type
	DefaultEntityType = "OTHER"
	// NoiseClusterID marks documents the clustering run could not assign
	NoiseClusterID = -1
)

// Topic levels stored on Topic nodes
const (
	TopicLevelClassification = "classification"
	TopicLevelMicro          = "micro"
	TopicLevelMacro          = "macro"
)

// Sync defaults
const (
	DefaultBatchSize        = 1000
	DefaultChunkSize        = 512
	DefaultChunkOverlap     = 50
	DefaultVectorDimensions = 1024
	DefaultSourceBucket     = "filter"
	// FallbackSourceBucket is tried when the filter bucket has no output for a date
	FallbackSourceBucket = "clean"
	// ProgressLogEvery controls how often per-table progress is logged, in batches
	ProgressLogEvery = 10
)

// DefaultPlatforms are the channel types seeded as Platform nodes
var DefaultPlatforms = []string{
	"微信", "微博", "新闻APP", "新闻网站", "电子报", "视频", "论坛", "自媒体",
}
