package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvcatalog/internal/models"
)

func testInput(cats *CategorySet) NormalizeInput {
	return NormalizeInput{
		PlaylistID: 1,
		Categories: cats,
		Credentials: models.Credentials{
			ServerURL: "http://provider.example:8080/player_api.php",
			Username:  "user",
			Password:  "pass",
		},
		Kind: models.KindLive,
	}
}

func TestNormalizeFieldFallbackChain(t *testing.T) {
	recs := []Record{
		decodeRecord(t, `{"num":42,"name":"Num only"}`),
		decodeRecord(t, `{"name":"No id"}`),
		decodeRecord(t, `{"stream_id":"7","title":"Titled"}`),
	}

	got, dropped := NormalizeAll(recs, testInput(nil))
	require.Len(t, got, 2)
	require.Len(t, dropped, 1)

	assert.Equal(t, "42", got[0].StreamID)
	assert.Equal(t, "Num only", got[0].Name)
	assert.Equal(t, "7", got[1].StreamID)
	assert.Equal(t, "Titled", got[1].Name)

	assert.Equal(t, 1, dropped[0].Index)
	assert.True(t, errors.Is(dropped[0].Err, ErrMissingField))
	var mf *MissingFieldError
	require.ErrorAs(t, dropped[0].Err, &mf)
	assert.Equal(t, "stream_id", mf.Field)
}

func TestNormalizeMissingName(t *testing.T) {
	_, err := Normalize(Record{"stream_id": "1", "name": "  "}, testInput(nil))
	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "name", mf.Field)
}

func TestNormalizeCategoryResolution(t *testing.T) {
	cats := NewCategorySet()
	cats.Put(models.Category{CategoryID: "3", Name: "News", Kind: models.KindLive})

	ch, err := Normalize(decodeRecord(t, `{"stream_id":1,"name":"A","category_id":3}`), testInput(cats))
	require.NoError(t, err)
	require.NotNil(t, ch.CategoryID)
	assert.Equal(t, "3", *ch.CategoryID)
	assert.Equal(t, "News", ch.CategoryName)

	ch, err = Normalize(decodeRecord(t, `{"stream_id":1,"name":"A","group":"99"}`), testInput(cats))
	require.NoError(t, err)
	require.NotNil(t, ch.CategoryID)
	assert.Equal(t, "99", *ch.CategoryID)
	assert.Equal(t, models.UncategorizedName, ch.CategoryName)

	ch, err = Normalize(decodeRecord(t, `{"stream_id":1,"name":"A"}`), testInput(cats))
	require.NoError(t, err)
	assert.Nil(t, ch.CategoryID)
	assert.Equal(t, models.UncategorizedName, ch.CategoryName)
}

func TestNormalizeStreamKindAndURL(t *testing.T) {
	in := testInput(nil)

	ch, err := Normalize(Record{"stream_id": "5", "name": "A"}, in)
	require.NoError(t, err)
	assert.Equal(t, "live", ch.StreamType)
	assert.Equal(t, "http://provider.example:8080/live/user/pass/5", ch.StreamURL)

	ch, err = Normalize(Record{"stream_id": "6", "name": "B", "stream_type": "vod"}, in)
	require.NoError(t, err)
	assert.Equal(t, "movie", ch.StreamType)
	assert.Equal(t, "http://provider.example:8080/movie/user/pass/6", ch.StreamURL)

	ch, err = Normalize(Record{"stream_id": "7", "name": "C", "stream": "http://cdn/7.ts"}, in)
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/7.ts", ch.StreamURL)

	in.Kind = ""
	ch, err = Normalize(Record{"stream_id": "8", "name": "D"}, in)
	require.NoError(t, err)
	assert.Equal(t, "live", ch.StreamType)
}

func TestNormalizeMetadataTail(t *testing.T) {
	rec := decodeRecord(t, `{
		"stream_id":1,"name":"Film","stream_icon":"http://i/1.png","tv_archive":1,
		"tv_archive_duration":"3","rating_5based":4.5,"rating":"9",
		"backdrop_path":["http://b/1.jpg","http://b/2.jpg"],"plot":"",
		"container_extension":"mkv"
	}`)
	ch, err := Normalize(rec, testInput(nil))
	require.NoError(t, err)

	require.NotNil(t, ch.StreamIcon)
	assert.Equal(t, "http://i/1.png", *ch.StreamIcon)
	require.NotNil(t, ch.TVArchive)
	assert.Equal(t, int64(1), *ch.TVArchive)
	require.NotNil(t, ch.TVArchiveDuration)
	assert.Equal(t, int64(3), *ch.TVArchiveDuration)
	require.NotNil(t, ch.Rating5Based)
	assert.InDelta(t, 4.5, *ch.Rating5Based, 1e-9)
	assert.Equal(t, []string{"http://b/1.jpg", "http://b/2.jpg"}, ch.BackdropPath)
	assert.Nil(t, ch.Plot)
	assert.Nil(t, ch.Cast)
	require.NotNil(t, ch.ContainerExtension)
	assert.Equal(t, "mkv", *ch.ContainerExtension)
}

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"http://h:80":                  "http://h:80",
		"http://h:80/":                 "http://h:80",
		"http://h/player_api.php":      "http://h",
		"http://h/api/panel_api.php":   "http://h",
		"http://h/panel_api.php":       "http://h",
		"http://h/sub/player_api.php/": "http://h/sub",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseURL(in), in)
	}
}

func TestNormalizeCanonicalStreamType(t *testing.T) {
	cases := []struct {
		label string
		kind  models.ContentKind
		want  string
	}{
		{"VOD", models.KindLive, "movie"},
		{" Series ", models.KindLive, "series"},
		{"created_live", models.KindLive, "live"},
		{"radio_streams", models.KindMovie, "movie"},
		{"radio_streams", "", "live"},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			in := testInput(nil)
			in.Kind = tc.kind
			ch, err := Normalize(Record{"stream_id": "9", "name": "X", "stream_type": tc.label}, in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ch.StreamType)
			assert.Contains(t, ch.StreamURL, "/"+tc.want+"/user/pass/9")
		})
	}
}
