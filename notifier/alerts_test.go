package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"social-poster/models"
	"social-poster/platforms"
)

func TestSummaryTextDistinguishesSkipsFromFailures(t *testing.T) {
	item := &models.Item{ID: 7}
	results := []platforms.Result{
		{Success: true, Channel: "micro", ExternalURL: "https://m/1"},
		{Channel: "gallery", Skipped: true, Error: "channel requires media and no image is available"},
		{Channel: "webhook", Error: "rate limited"},
	}

	got := summaryText(item, results)

	assert.Contains(t, got, "Post #7 Results")
	assert.Contains(t, got, "✅ Micro")
	assert.Contains(t, got, "https://m/1")
	assert.Contains(t, got, "⏭ Gallery", "a skipped channel is not rendered as a failure")
	assert.Contains(t, got, "❌ Webhook")
}
