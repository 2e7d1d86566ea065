package cache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"vidgate/internal/upstream"
)

func TestKey_DeterministicAcrossParamOrder(t *testing.T) {
	a := url.Values{}
	a.Set("q", "gophers")
	a.Set("maxResults", "5")

	b := url.Values{}
	b.Set("maxResults", "5")
	b.Set("q", "gophers")

	keyA := Key{Class: upstream.ClassSearch, Params: a}.String()
	keyB := Key{Class: upstream.ClassSearch, Params: b}.String()
	assert.Equal(t, keyA, keyB)
	assert.Equal(t, "cache:search:maxResults=5:q=gophers", keyA)
}

func TestKey_DistinctParamsDistinctKeys(t *testing.T) {
	a := url.Values{"q": {"gophers"}}
	b := url.Values{"q": {"rust"}}

	keyA := Key{Class: upstream.ClassSearch, Params: a}.String()
	keyB := Key{Class: upstream.ClassSearch, Params: b}.String()
	assert.NotEqual(t, keyA, keyB)
}

func TestKey_ClassSeparatesNamespaces(t *testing.T) {
	params := url.Values{"id": {"abc"}}

	video := Key{Class: upstream.ClassVideo, Params: params}.String()
	channel := Key{Class: upstream.ClassChannel, Params: params}.String()
	assert.NotEqual(t, video, channel)
}

func TestKey_NoParams(t *testing.T) {
	key := Key{Class: upstream.ClassTrending}.String()
	assert.Equal(t, "cache:trending", key)
}

func TestKey_MultiValueParamsSorted(t *testing.T) {
	a := url.Values{"part": {"snippet", "statistics"}}
	b := url.Values{"part": {"statistics", "snippet"}}

	keyA := Key{Class: upstream.ClassVideo, Params: a}.String()
	keyB := Key{Class: upstream.ClassVideo, Params: b}.String()
	assert.Equal(t, keyA, keyB)
}

func TestKey_SeparatorsInValuesCannotCollide(t *testing.T) {
	a := url.Values{"q": {"a:b=c"}}
	b := url.Values{"q": {"a"}, "b": {"c"}}

	keyA := Key{Class: upstream.ClassSearch, Params: a}.String()
	keyB := Key{Class: upstream.ClassSearch, Params: b}.String()
	assert.NotEqual(t, keyA, keyB)
}

func TestKey_GlobMetacharactersEscaped(t *testing.T) {
	key := Key{Class: upstream.ClassSearch, Params: url.Values{"q": {"go*[lang]?"}}}.String()
	assert.NotContains(t, key, "*")
	assert.NotContains(t, key, "[")
	assert.NotContains(t, key, "?")
}

func TestClassPattern_MatchesBareAndParamKeys(t *testing.T) {
	assert.Equal(t, "cache:search*", ClassPattern(upstream.ClassSearch))
	assert.Equal(t, "cache:*", AllPattern())
}
