package server

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/memebox/memebox/pkg/errors"
	"github.com/memebox/memebox/pkg/fonts"
	"github.com/memebox/memebox/pkg/layout"
	"github.com/memebox/memebox/pkg/meme"
	"github.com/memebox/memebox/pkg/pipeline"
	"github.com/memebox/memebox/pkg/raster"
	"github.com/memebox/memebox/pkg/rendercache"
	"github.com/memebox/memebox/pkg/texts"
)

// fakeFace provides deterministic metrics without system fonts.
type fakeFace struct {
	size float64
}

func (f fakeFace) Close() error { return nil }

func (f fakeFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	return image.Rectangle{}, image.NewAlpha(image.Rect(0, 0, 1, 1)), image.Point{}, f.advance(), true
}

func (f fakeFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	return fixed.Rectangle26_6{}, f.advance(), true
}

func (f fakeFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) { return f.advance(), true }
func (f fakeFace) Kern(r0, r1 rune) fixed.Int26_6            { return 0 }

func (f fakeFace) Metrics() font.Metrics {
	return font.Metrics{
		Height:  fixed.I(int(f.size)),
		Ascent:  fixed.I(int(f.size * 4 / 5)),
		Descent: fixed.I(int(f.size / 5)),
	}
}

func (f fakeFace) advance() fixed.Int26_6 { return fixed.Int26_6(f.size * 32) }

type fakeSource struct{}

func (fakeSource) Face(points float64) (font.Face, error) { return fakeFace{size: points}, nil }

type fakeFaces struct{}

func (fakeFaces) Source(family string) fonts.Source { return fakeSource{} }

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	catalog := meme.NewMemoryCatalog(
		[]*meme.Template{{
			ID:    "fry",
			Name:  "Futurama Fry",
			Width: 300,
			Boxes: []meme.Box{
				{X: 10, Y: 10, Width: 280, Height: 60, Anchor: meme.AnchorTop},
				{X: 10, Y: 130, Width: 280, Height: 60, Anchor: meme.AnchorBottom},
			},
		}},
		map[string]*meme.FrameSet{
			"fry": {Images: []image.Image{image.NewRGBA(image.Rect(0, 0, 300, 200))}},
		},
	)
	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Catalog: catalog,
		Layout:  layout.NewEngine(fakeFaces{}, 0, 0),
		Raster:  raster.NewRenderer(fakeFaces{}, 0),
		Store:   rendercache.NewStore(rendercache.NewMemoryCache(64, time.Minute), time.Minute, nil),
	})
	t.Cleanup(func() { runner.Close() })

	ts := httptest.NewServer(New(runner, "", nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

// get performs a GET without following redirects.
func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestMemeRoute(t *testing.T) {
	ts := testServer(t)

	resp := get(t, ts.URL+"/images/fry/hello/world.png", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("content type = %q, want image/png", got)
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("missing ETag")
	}
}

func TestMemeRouteJPEG(t *testing.T) {
	ts := testServer(t)

	resp := get(t, ts.URL+"/images/fry/hello/world.jpg", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", got)
	}
}

func TestBlankRoute(t *testing.T) {
	ts := testServer(t)

	resp := get(t, ts.URL+"/images/fry.png", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("content type = %q, want image/png", got)
	}
}

func TestConditionalRequest(t *testing.T) {
	ts := testServer(t)

	first := get(t, ts.URL+"/images/fry/hello/world.png", nil)
	etag := first.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	second := get(t, ts.URL+"/images/fry/hello/world.png", http.Header{"If-None-Match": {etag}})
	if second.StatusCode != http.StatusNotModified {
		t.Errorf("status = %d, want 304", second.StatusCode)
	}
}

func TestCanonicalRedirect(t *testing.T) {
	ts := testServer(t)

	// "hello-world" decodes to "hello world", whose canonical encoding
	// is "hello_world".
	resp := get(t, ts.URL+"/images/fry/hello-world.png", nil)
	if resp.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/images/fry/hello_world.png" {
		t.Errorf("location = %q, want /images/fry/hello_world.png", loc)
	}

	// Style parameters survive the redirect.
	styled := get(t, ts.URL+"/images/fry/hello-world.png?font=impact", nil)
	if loc := styled.Header.Get("Location"); loc != "/images/fry/hello_world.png?font=impact" {
		t.Errorf("location = %q, want query preserved", loc)
	}
}

func TestUnknownExtensionIsText(t *testing.T) {
	ts := testServer(t)

	// ".5" is not an image format, so the dot belongs to the text and
	// the default format applies.
	resp := get(t, ts.URL+"/images/fry/ver_1.5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("content type = %q, want image/png", got)
	}
}

// Style overrides via query parameters change the render and therefore
// the fingerprint.
func TestStyleQueryParams(t *testing.T) {
	ts := testServer(t)

	plain := get(t, ts.URL+"/images/fry/hello.png", nil)
	if plain.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", plain.StatusCode)
	}
	styled := get(t, ts.URL+"/images/fry/hello.png?color=%23ff0000&font=impact", nil)
	if styled.StatusCode != http.StatusOK {
		t.Fatalf("styled status = %d, want 200", styled.StatusCode)
	}
	if plain.Header.Get("ETag") == styled.Header.Get("ETag") {
		t.Error("styled render shares an ETag with the unstyled render")
	}
}

func TestStyleQueryParamsInvalidColor(t *testing.T) {
	ts := testServer(t)

	resp := get(t, ts.URL+"/images/fry/hello.png?color=red", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body struct {
		Code errors.Code `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != errors.ErrCodeInvalidStyle {
		t.Errorf("code = %q, want %q", body.Code, errors.ErrCodeInvalidStyle)
	}
}

func TestUnknownTemplate(t *testing.T) {
	ts := testServer(t)

	resp := get(t, ts.URL+"/images/nope/hello.png", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body struct {
		Code errors.Code `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != errors.ErrCodeTemplateNotFound {
		t.Errorf("code = %q, want %q", body.Code, errors.ErrCodeTemplateNotFound)
	}
}

func TestOversizeSegment(t *testing.T) {
	ts := testServer(t)

	long := strings.Repeat("a", texts.MaxSegmentLen+1)
	resp := get(t, ts.URL+"/images/fry/"+long+".png", nil)
	if resp.StatusCode != http.StatusRequestURITooLong {
		t.Fatalf("status = %d, want 414", resp.StatusCode)
	}
}

func TestTemplatesListing(t *testing.T) {
	ts := testServer(t)

	resp := get(t, ts.URL+"/templates", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var list []templateInfo
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "fry" || list[0].Boxes != 2 {
		t.Errorf("unexpected listing: %+v", list)
	}
	if list[0].Blank != "/images/fry.png" {
		t.Errorf("blank url = %q", list[0].Blank)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	ts := testServer(t)

	resp := get(t, ts.URL+"/templates", http.Header{requestIDHeader: {"abc-123"}})
	if got := resp.Header.Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
	fresh := get(t, ts.URL+"/templates", nil)
	if fresh.Header.Get(requestIDHeader) == "" {
		t.Error("missing generated request id")
	}
}
