package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	require.NoError(t, err)
	return d
}

func TestSetText_ReplacesChildren(t *testing.T) {
	d := mustParse(t, `<html><body><p id="a">old <b>bold</b></p></body></html>`)
	var p *html.Node
	d.Read(func(root *html.Node) { p = FindByID(root, "a") })
	require.NotNil(t, p)

	d.SetText(p, "new <text>")
	assert.Equal(t, "new &lt;text&gt;", InnerHTML(p))
	assert.False(t, HasElementChildren(p))
	assert.Contains(t, d.String(), `<p id="a">new &lt;text&gt;</p>`)
}

func TestSetAttr_AddsAndReplaces(t *testing.T) {
	d := mustParse(t, `<img id="i" src="a.gpg">`)
	var img *html.Node
	d.Read(func(root *html.Node) { img = FindByID(root, "i") })
	d.SetAttr(img, "src", "/blobs/x")
	d.SetAttr(img, "alt", "decrypted")
	v, _ := Attr(img, "src")
	assert.Equal(t, "/blobs/x", v)
	v, ok := Attr(img, "alt")
	assert.True(t, ok)
	assert.Equal(t, "decrypted", v)
}

func TestObserver_FiltersAttributes(t *testing.T) {
	d := mustParse(t, `<div id="d"></div>`)
	var div *html.Node
	d.Read(func(root *html.Node) { div = FindByID(root, "d") })

	o := d.Observe(ObserveOptions{ChildList: true, Attributes: true, AttributeFilter: []string{"src"}})
	defer o.Disconnect()

	d.SetAttr(div, "class", "x")
	assert.Empty(t, o.TakeRecords())

	d.SetAttr(div, "src", "y")
	recs := o.TakeRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, Attributes, recs[0].Type)
	assert.Equal(t, "src", recs[0].AttributeName)

	child := Element("span")
	d.AppendChild(div, child)
	select {
	case <-o.Notify():
	default:
		t.Fatal("expected notification")
	}
	recs = o.TakeRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, ChildList, recs[0].Type)
	assert.Same(t, div, recs[0].Target)
	assert.Equal(t, []*html.Node{child}, recs[0].AddedNodes)
}

func TestObserver_DisconnectStopsDelivery(t *testing.T) {
	d := mustParse(t, `<div id="d"></div>`)
	var div *html.Node
	d.Read(func(root *html.Node) { div = FindByID(root, "d") })
	o := d.Observe(ObserveOptions{ChildList: true})
	o.Disconnect()
	d.AppendChild(div, Text("x"))
	assert.Empty(t, o.TakeRecords())
}

func TestWalk_DocumentOrder(t *testing.T) {
	d := mustParse(t, `<div id="a"><p id="b"><i id="c"></i></p><p id="d"></p></div>`)
	var ids []string
	d.Read(func(root *html.Node) {
		Walk(root, func(n *html.Node) {
			if v, ok := Attr(n, "id"); ok {
				ids = append(ids, v)
			}
		})
	})
	assert.Equal(t, "a,b,c,d", strings.Join(ids, ","))
}

func TestReloadCount(t *testing.T) {
	d := mustParse(t, `<video id="v"><source src="a.gpg"></video>`)
	var v *html.Node
	d.Read(func(root *html.Node) { v = FindByID(root, "v") })
	assert.True(t, IsMedia(v))
	d.Reload(v)
	assert.Equal(t, 1, d.ReloadCount(v))
}
