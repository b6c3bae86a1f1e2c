package urlqueue_test

import (
	"testing"

	urlqueue "h1b_ingest/internal/url_queue"

	"github.com/stretchr/testify/require"
)

func TestPageQueue(t *testing.T) {
	t.Parallel()

	t.Run("hands out numbered pages up to the cap", func(t *testing.T) {
		t.Parallel()
		q, err := urlqueue.NewPageQueue("https://www.myvisajobs.com/reports/h1b/?T=Employer", "P", 2)
		require.NoError(t, err)

		u, n, ok := q.Next()
		require.True(t, ok)
		require.Equal(t, 1, n)
		require.Equal(t, "https://www.myvisajobs.com/reports/h1b/?P=1&T=Employer", u)

		_, n, ok = q.Next()
		require.True(t, ok)
		require.Equal(t, 2, n)

		_, _, ok = q.Next()
		require.False(t, ok)
	})

	t.Run("defaults the page parameter", func(t *testing.T) {
		t.Parallel()
		q, err := urlqueue.NewPageQueue("http://example.com/list", "", 0)
		require.NoError(t, err)
		u, _, _ := q.Next()
		require.Equal(t, "http://example.com/list?P=1", u)
	})

	t.Run("rejects relative locations", func(t *testing.T) {
		t.Parallel()
		_, err := urlqueue.NewPageQueue("/reports", "P", 1)
		require.Error(t, err)
	})
}

func TestURLHelpers(t *testing.T) {
	t.Parallel()

	robots, path, err := urlqueue.RobotsURL("https://h1bdata.info/topjobs.php?x=1")
	require.NoError(t, err)
	require.Equal(t, "https://h1bdata.info/robots.txt", robots)
	require.Equal(t, "/topjobs.php", path)

	require.Equal(t, "http://render:3000/content?url=https%3A%2F%2Fa.b%2Fc%3Fd%3D1",
		urlqueue.Expand("http://render:3000/content?url={url}", "https://a.b/c?d=1"))
}
