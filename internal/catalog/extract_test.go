package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvcatalog/internal/models"
)

func TestExtractChannelsPanel(t *testing.T) {
	body := `{"categories":{},"available_channels":{
		"20":{"name":"B","stream_type":"movie"},
		"10":{"name":"A"},
		"30":"not an object"
	}}`
	p, err := Detect([]byte(body), "http://p/api/panel_api.php")
	require.NoError(t, err)

	recs := ExtractChannels(p, models.KindLive)
	require.Len(t, recs, 2)

	id, _ := recs[0].String("stream_id")
	assert.Equal(t, "10", id)
	st, _ := recs[0].String("stream_type")
	assert.Equal(t, "live", st)

	st, _ = recs[1].String("stream_type")
	assert.Equal(t, "movie", st, "existing stream_type is kept")

	// injection must not write through to the decoded payload
	avail, _ := p.Object.Object("available_channels")
	orig, _ := avail["10"].(map[string]any)
	assert.NotContains(t, orig, "stream_id")
}

func TestExtractChannelsFlatArrayDropsNonObjects(t *testing.T) {
	body := `[{"stream_id":1,"name":"A"},7,"x",null,{"stream_id":2,"name":"B"}]`
	p, err := Detect([]byte(body), "http://p/player_api.php?action=get_vod_streams")
	require.NoError(t, err)

	recs := ExtractChannels(p, models.KindMovie)
	require.Len(t, recs, 2)
	for _, r := range recs {
		st, _ := r.String("stream_type")
		assert.Equal(t, "movie", st)
	}
	id, _ := recs[1].String("stream_id")
	assert.Equal(t, "2", id)
}

func TestExtractChannelsWrapperScan(t *testing.T) {
	body := `{"data":[{"stream_id":"d1","name":"D"}],"live_streams":[{"stream_id":"l1","name":"L"}]}`
	p, err := Detect([]byte(body), "http://p/player_api.php")
	require.NoError(t, err)

	recs := ExtractChannels(p, "")
	require.Len(t, recs, 1)
	id, _ := recs[0].String("stream_id")
	assert.Equal(t, "d1", id)
	assert.False(t, recs[0].Has("stream_type"))
}

func TestExtractChannelsNothingFound(t *testing.T) {
	p, err := Detect([]byte(`{"user_info":{}}`), "http://p/player_api.php")
	require.NoError(t, err)
	assert.Empty(t, ExtractChannels(p, models.KindLive))
	assert.Empty(t, ExtractChannels(nil, models.KindLive))
}
