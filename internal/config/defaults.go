package config

import (
	"time"

	"github.com/spf13/viper"

	"finchat/internal/compaction"
	"finchat/internal/provider/ollama"
	"finchat/internal/summarizer"
)

// SetDefaults registers a default for every key so that environment
// overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8087)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_minute", 60)
	v.SetDefault("server.rate_limit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	dataPath, err := DefaultDataPath()
	if err != nil {
		dataPath = "finchat.db"
	}
	v.SetDefault("storage.path", dataPath)

	cc := compaction.DefaultConfig()
	v.SetDefault("compaction.max_token_budget", cc.MaxTokenBudget)
	v.SetDefault("compaction.verbatim_tail_size", cc.VerbatimTailSize)
	v.SetDefault("compaction.layer_group_size", cc.LayerGroupSize)
	v.SetDefault("compaction.base_compression_ratio", cc.BaseCompressionRatio)
	v.SetDefault("compaction.merge_ratio", cc.MergeRatio)
	v.SetDefault("compaction.chars_per_token", cc.CharsPerToken)
	v.SetDefault("compaction.summarizer_timeout", cc.SummarizerTimeout)

	oc := ollama.DefaultConfig()
	v.SetDefault("summarizer.kind", summarizer.KindTruncate)
	v.SetDefault("summarizer.temperature", 0.2)
	v.SetDefault("summarizer.ollama.endpoint", oc.Endpoint)
	v.SetDefault("summarizer.ollama.model", oc.Model)
	v.SetDefault("summarizer.ollama.timeout", oc.Timeout)
	v.SetDefault("summarizer.ollama.keep_alive", oc.KeepAlive)
	v.SetDefault("summarizer.anthropic.api_key", "")
	v.SetDefault("summarizer.anthropic.base_url", "")
	v.SetDefault("summarizer.anthropic.model", summarizer.DefaultAnthropicModel)
	v.SetDefault("summarizer.anthropic.max_retries", 0)
	v.SetDefault("summarizer.anthropic.timeout", time.Minute)

	v.SetDefault("refresh.enabled", false)
	v.SetDefault("refresh.schedule", "@every 10m")
	v.SetDefault("refresh.batch_size", 50)
	v.SetDefault("refresh.keep_snapshots", 5)
}
