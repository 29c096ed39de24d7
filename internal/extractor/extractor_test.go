package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const directoryHTML = `<html><body>
<a href="/elan/satilir-2-otaqli-menzil-101">first</a>
<a href="/elan/satilir-2-otaqli-menzil-101">first again</a>
<a href="https://yeniemlak.az/elan/kiraye-ev-202">second</a>
<a href="/elan/axtar?x=1-303">search</a>
<a href="/elan/Upper-Case-404">ignored</a>
<a href="/about">about</a>
<div class="pagination">
  <a href="/elan/axtar?page=2">2</a>
  <a href="/elan/axtar?page=17">17</a>
  <a href="/elan/axtar?page=3">3</a>
</div>
</body></html>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New("https://yeniemlak.az")
	require.NoError(t, err)
	return e
}

func TestRecordURLs(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	urls := e.RecordURLs(crawler.Page{URL: "https://yeniemlak.az/elan/axtar?page=1", Body: []byte(directoryHTML)})

	assert.Equal(t, []string{
		"https://yeniemlak.az/elan/satilir-2-otaqli-menzil-101",
		"https://yeniemlak.az/elan/kiraye-ev-202",
	}, urls)
}

func TestTotalPages(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	total, ok := e.TotalPages(crawler.Page{Body: []byte(directoryHTML)})
	assert.True(t, ok)
	assert.Equal(t, 17, total)

	_, ok = e.TotalPages(crawler.Page{Body: []byte(`<a href="/elan/x-1">x</a>`)})
	assert.False(t, ok)

	_, ok = e.TotalPages(crawler.Page{})
	assert.False(t, ok)
}

const recordHTML = `<html><body>
<table class="view"><tr><td>
  <tip>Satılır</tip>
  <price>185 000</price>
  <titem><g>Baxis sayi: <b>412</b></g></titem>
  <titem>Tarix: <b>12.03.2024</b></titem>
  <titem>Elan nömrəsi: <b>3301</b></titem>
  <emlak>Yeni tikili</emlak>
  <div class="box">
    <div class="params"><b>3</b> otaqlı</div>
    <div class="params"><b>95</b> m2</div>
    <div class="params"><b>12</b> mertebeli</div>
  </div>
  <div class="text">short</div>
  <div class="text">Təmirli, əşyalı, metroya yaxın mənzil satılır.</div>
  <div class="check">Qaz</div>
  <div class="check"> Su </div>
  <h1>Ünvan</h1>
  <div class="params"><b>Bakı</b></div>
  <div class="text">Nəsimi r.</div>
  <div class="text">28 May m.</div>
  <h1>Əlaqə</h1>
  <div class="text">Zəng edin</div>
  <div class="ad">Elvin</div>
  <div class="elvrn">Vasitəçi</div>
  <div class="tel"><img src="/tel-show/0501234567"></div>
  <img class="imgb" src="/img/main.jpg">
  <div class="img_div"><a href="https://yeniemlak.az/img/1.jpg">1</a></div>
  <div class="img_div"><a href="https://yeniemlak.az/img/2.jpg">2</a></div>
</td></tr></table>
</body></html>`

func TestRecord(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)
	u := "https://yeniemlak.az/elan/satilir-3-otaqli-menzil-3301"

	rec, ok := e.Record(crawler.Page{URL: u, Body: []byte(recordHTML)})
	require.True(t, ok)

	assert.Equal(t, u, rec.URL())
	assert.Equal(t, "3301", rec.ID())
	assert.Equal(t, "Satılır", rec[FieldSaleType])
	assert.Equal(t, "185 000", rec[FieldPrice])
	assert.Equal(t, "412", rec[FieldViews])
	assert.Equal(t, "12.03.2024", rec[FieldDate])
	assert.Equal(t, "3301", rec[FieldElanID])
	assert.Equal(t, "Yeni tikili", rec[FieldPropertyType])
	assert.Equal(t, "3", rec[FieldRooms])
	assert.Equal(t, "95", rec[FieldAreaM2])
	assert.Equal(t, "12", rec[FieldFloors])
	assert.Equal(t, "Təmirli, əşyalı, metroya yaxın mənzil satılır.", rec[FieldDescription])
	assert.Equal(t, []string{"Qaz", "Su"}, rec[FieldFeatures])
	assert.Equal(t, "Bakı", rec[FieldRegion])
	assert.Equal(t, "Nəsimi r., 28 May m.", rec[FieldAddress])
	assert.Equal(t, "Elvin", rec[FieldContactName])
	assert.Equal(t, "Vasitəçi", rec[FieldContactType])
	assert.Equal(t, "0501234567", rec[FieldPhone])
	assert.Equal(t, []string{
		"https://yeniemlak.az/img/main.jpg",
		"https://yeniemlak.az/img/1.jpg",
		"https://yeniemlak.az/img/2.jpg",
	}, rec[FieldImages])
	assert.Equal(t, 3, rec[FieldImageCount])
}

func TestRecord_PositionalFallback(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)
	body := `<table class="view"><tr><td><div class="box">
		<div class="params"><b>2</b></div>
		<div class="params"><b>60</b></div>
		<div class="params"><b>4</b> sot</div>
	</div></td></tr></table>`

	rec, ok := e.Record(crawler.Page{URL: "https://yeniemlak.az/elan/ev-9", Body: []byte(body)})
	require.True(t, ok)

	assert.Equal(t, "2", rec[FieldRooms])
	assert.Equal(t, "60", rec[FieldAreaM2])
	assert.Equal(t, "4", rec[FieldLandAreaSot])
	assert.NotContains(t, rec, FieldFloors)
}

func TestPositionalFallback_KeepsKeywordMatches(t *testing.T) {
	t.Parallel()
	rec := crawler.Record{FieldAreaM2: "80"}
	positionalFallback(rec, []string{"1", "2", "3", "4", "5"})

	assert.Equal(t, "1", rec[FieldRooms])
	assert.Equal(t, "80", rec[FieldAreaM2])
	assert.Equal(t, "3", rec[FieldLandAreaSot])
	assert.Equal(t, "4", rec[FieldFloors])
}

func TestRecord_NoListingTable(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	_, ok := e.Record(crawler.Page{URL: "https://yeniemlak.az/elan/ev-9", Body: []byte(`<html><body>captcha</body></html>`)})
	assert.False(t, ok)

	_, ok = e.Record(crawler.Page{URL: "https://yeniemlak.az/elan/ev-9"})
	assert.False(t, ok)
}

func TestRecord_MinimalPageHasEmptyLists(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)
	rec, ok := e.Record(crawler.Page{URL: "https://yeniemlak.az/elan/ev-9", Body: []byte(`<table class="view"><tr><td></td></tr></table>`)})
	require.True(t, ok)

	assert.Equal(t, []string{}, rec[FieldFeatures])
	assert.Equal(t, []string{}, rec[FieldImages])
	assert.Equal(t, 0, rec[FieldImageCount])
	assert.NotContains(t, rec, FieldPrice)
	assert.Equal(t, "9", rec.ID())
}

func TestPager(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dir  string
		want string
	}{
		{dir: "https://yeniemlak.az/elan/axtar?elan_nov=&metro%5B%5D=0", want: "https://yeniemlak.az/elan/axtar?elan_nov=&metro%5B%5D=0&page=4"},
		{dir: "https://yeniemlak.az/elan/axtar", want: "https://yeniemlak.az/elan/axtar?page=4"},
		{dir: "https://yeniemlak.az/elan/axtar?", want: "https://yeniemlak.az/elan/axtar?page=4"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NewPager(tc.dir, "").PageURL(4))
	}
	assert.Equal(t, "https://x.test/list?p=2", NewPager("https://x.test/list", "p").PageURL(2))
}
