package spider

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi-data/bookharvest/internal/book"
)

const listingHTML = `
<html><body>
<div id="BookContent">
  <div class="TwoBox02_01">
    <div class="TwoBox02_02">
      <div class="TwoBox02_03"><a href="//b.faloo.com/1390477.html"><img src="//img.faloo.com/covers/1390477.jpg"></a></div>
      <div class="TwoBox02_08"><h1><a href="//b.faloo.com/1390477.html">剑骨</a></h1></div>
      <div class="TwoBox02_09"><span><a href="#">青竹客</a></span></div>
      <div class="TwoBox02_10"><span>月点击</span><span>12.5万</span><span>字数</span><span>320万</span></div>
    </div>
    <div class="TwoBox02_02">
      <div class="TwoBox02_03"><a href="#"><img src="//img.faloo.com/covers/orphan.png"></a></div>
      <div class="TwoBox02_08"><h1>无链接的书</h1></div>
      <div class="TwoBox02_09"><span><a href="#">佚名</a></span></div>
      <div class="TwoBox02_10"><span>月点击</span><span>3千</span><span>字数</span><span>8万</span></div>
    </div>
  </div>
</div>
</body></html>`

func TestParseListing(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listingHTML))
	require.NoError(t, err)

	items := ParseListing(doc)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "剑骨", first.Title)
	assert.Equal(t, "青竹客", first.Author)
	assert.Equal(t, "12.5万", first.MonthlyClicks)
	assert.Equal(t, "320万", first.WordCount)
	assert.Equal(t, "https://b.faloo.com/1390477.html", first.BookURL)
	require.Len(t, first.ImageURLs, 1)
	assert.Equal(t, "https://img.faloo.com/covers/1390477.jpg", first.ImageURLs[0])

	// A cell without a detail link still yields an item.
	second := items[1]
	assert.Equal(t, "无链接的书", second.Title)
	assert.Empty(t, second.BookURL)
	assert.Empty(t, second.Tags)
}

const detailHTML = `
<html><body>
<div class="T-L-T-C-Box1">
  <p>少年背起铁剑。</p>
  <p>   </p>
  <p>从此山高水远。</p>
</div>
<div><a class="LXbq" href="#">玄幻</a><a class="LXbq" href="#">争霸</a></div>
<div id="flowers"> 1024 </div>
<span id="score">9.2分</span>
<div id="rewards">56万</div>
</body></html>`

func TestParseDetail(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(detailHTML))
	require.NoError(t, err)

	fields := ParseDetail(doc)
	assert.Equal(t, "少年背起铁剑。\n从此山高水远。", fields.Summary)
	assert.Equal(t, []string{"玄幻", "争霸"}, fields.Tags)
	assert.Equal(t, "1024", fields.Flowers)
	assert.Equal(t, "9.2分", fields.Rating)
	assert.Equal(t, "56万", fields.Rewards)
}

func TestDetailFieldsApplyNeverClearsExisting(t *testing.T) {
	t.Parallel()

	item := book.Item{
		Title:   "剑骨",
		Summary: "旧摘要",
		Flowers: "10",
		Tags:    []string{"旧标签"},
	}

	DetailFields{Rating: "8.8分"}.Apply(&item)

	assert.Equal(t, "旧摘要", item.Summary, "empty detail summary must not clear the previous value")
	assert.Equal(t, "10", item.Flowers)
	assert.Equal(t, []string{"旧标签"}, item.Tags)
	assert.Equal(t, "8.8分", item.Rating)
}
