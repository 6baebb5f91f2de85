package span

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmxml/internal/doctree"
	"llmxml/internal/reconcile"
	"llmxml/pkg/contract"
)

const fixture = `<?xml version="1.0" encoding="UTF-8"?>
<Page>
  <SIMPLE_TEXT TbpeId="s1">
    <TextBody>{"t":"p","c":[{"t":"r","c":["Hello\u00a0dear","world"]}]}</TextBody>
    <RenderPos x="1" y="2"/>
  </SIMPLE_TEXT>
  <TEXT TbpeId="f1">
    <Text>Flat one</Text>
    <TextData w="10"/>
  </TEXT>
  <SIMPLE_TEXT TbpeId="s2">
    <TextBody>{"c":[{"t":"p","c":[{"t":"r","c":["Line1\nLine2"]}]}]}</TextBody>
    <RenderPos x="3"/>
  </SIMPLE_TEXT>
  <TEXT TbpeId="f2">Outer text<TextData/></TEXT>
  <SIMPLE_TEXT TbpeId="bad"><TextBody>{not json</TextBody><RenderPos/></SIMPLE_TEXT>
  <TEXT>no id</TEXT>
  <TEXT TbpeId="blank">   </TEXT>
</Page>`

func load(t *testing.T, src string) *doctree.Document {
	t.Helper()
	doc, err := doctree.NewSnapshot("fixture.xml", []byte(src)).Rebuild()
	require.NoError(t, err)
	return doc
}

func TestLocateOrderAndValues(t *testing.T) {
	e := New(Options{}, nil)
	got := e.Locate(load(t, fixture))
	want := []contract.Span{
		{ID: "s1", HasID: true, Text: "Hello dear world", Raw: "Hello dear world", Encoding: contract.StructuredText, Node: "/0/0"},
		{ID: "s2", HasID: true, Text: `Line1\nLine2`, Raw: "Line1\nLine2", Encoding: contract.StructuredText, Node: "/0/2"},
		{ID: "f1", HasID: true, Text: "Flat one", Raw: "Flat one", Encoding: contract.FlatText, Node: "/0/1"},
		{ID: "f2", HasID: true, Text: "Outer text", Raw: "Outer text", Encoding: contract.FlatText, Node: "/0/3"},
		{Text: "no id", Raw: "no id", Encoding: contract.FlatText, Node: "/0/5"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Locate 结果不符 (-want +got):\n%s", diff)
	}
}

// 两棵新树上的抽取结果完全一致
func TestLocateStable(t *testing.T) {
	snap := doctree.NewSnapshot("fixture.xml", []byte(fixture))
	e := New(Options{}, nil)
	a, err := snap.Rebuild()
	require.NoError(t, err)
	b, err := snap.Rebuild()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(e.Locate(a), e.Locate(b)))
}

// 内层 <Text> 为空时退回外层文本
func TestLocateFlatFallback(t *testing.T) {
	src := `<P><TEXT TbpeId="1"><Text></Text></TEXT><TEXT TbpeId="2">outer<Text>inner</Text></TEXT></P>`
	got := New(Options{}, nil).Locate(load(t, src))
	require.Len(t, got, 1)
	assert.Equal(t, "inner", got[0].Text)
}

// 写回落在读取时取文本的节点上
func TestWriteFlatTargetsReadSource(t *testing.T) {
	cases := []struct{ name, src, want string }{
		{"内层非空", `<P><TEXT TbpeId="1">outer<Text>inner</Text></TEXT></P>`, `<P><TEXT TbpeId="1">outer<Text>new</Text></TEXT></P>`},
		{"内层为空", `<P><TEXT TbpeId="1">outer<Text/></TEXT></P>`, `<P><TEXT TbpeId="1">new<Text/></TEXT></P>`},
		{"两者皆空", `<P><TEXT TbpeId="1"><Text/></TEXT></P>`, `<P><TEXT TbpeId="1"><Text>new</Text></TEXT></P>`},
		{"无内层", `<P><TEXT TbpeId="1">outer</TEXT></P>`, `<P><TEXT TbpeId="1">new</TEXT></P>`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := New(Options{}, nil)
			doc := load(t, c.src)
			e.Write(doc, []contract.ReconciledSpan{{ID: "1", HasID: true, Text: "new"}})
			out, err := doc.Serialize()
			require.NoError(t, err)
			assert.Equal(t, c.want, out)

			// 原文写回不改变文档
			doc = load(t, c.src)
			e.Write(doc, reconcile.Identity(e.Locate(doc)))
			out, err = doc.Serialize()
			require.NoError(t, err)
			assert.Equal(t, c.src, out)
		})
	}
}

// 原文写回：除渲染缓存外逐字节一致
func TestWriteIdentityRoundTrip(t *testing.T) {
	e := New(Options{}, nil)
	doc := load(t, fixture)
	spans := e.Locate(doc)
	rep := e.Write(doc, reconcile.Identity(spans))
	out, err := doc.Serialize()
	require.NoError(t, err)

	want := fixture
	for _, cut := range []string{
		"\n    <RenderPos x=\"1\" y=\"2\"/>",
		"\n    <TextData w=\"10\"/>",
		"\n    <RenderPos x=\"3\"/>",
		"<TextData/>",
	} {
		require.Contains(t, want, cut)
		want = strings.Replace(want, cut, "", 1)
	}
	assert.Equal(t, want, out)
	assert.Equal(t, 4, rep.Updated)
	assert.Equal(t, 4, rep.CachesRemoved)
	assert.Equal(t, 1, rep.Dropped)
	assert.Empty(t, rep.Unmatched)
}

func TestWriteRewritesAndDropsCache(t *testing.T) {
	e := New(Options{}, nil)
	doc := load(t, fixture)
	rep := e.Write(doc, []contract.ReconciledSpan{
		{ID: "s1", HasID: true, Text: "Bonjour"},
		{ID: "f1", HasID: true, Text: "Plat"},
		{ID: "f2", HasID: true, Text: "Dehors"},
	})
	out, err := doc.Serialize()
	require.NoError(t, err)

	assert.Contains(t, out, `<TextBody>{"t":"p","c":[{"t":"r","c":["Bonjour"]}]}</TextBody>`)
	assert.Contains(t, out, `<Text>Plat</Text>`)
	assert.Contains(t, out, `<TEXT TbpeId="f2">Dehors</TEXT>`)
	assert.NotContains(t, out, `<RenderPos x="1" y="2"/>`)
	assert.NotContains(t, out, `<TextData w="10"/>`)
	// 未改写的节点保留缓存
	assert.Contains(t, out, `<RenderPos x="3"/>`)
	assert.Contains(t, out, `<SIMPLE_TEXT TbpeId="bad"><TextBody>{not json</TextBody><RenderPos/></SIMPLE_TEXT>`)
	assert.Equal(t, 3, rep.Updated)
}

func TestWriteNewlineIntoJSON(t *testing.T) {
	e := New(Options{}, nil)
	doc := load(t, fixture)
	e.Write(doc, []contract.ReconciledSpan{{ID: "s2", HasID: true, Text: "A\nB"}})
	got := e.Locate(doc)
	require.Equal(t, "s2", got[1].ID)
	assert.Equal(t, `A\nB`, got[1].Text)
}

// 重复标识：后写覆盖先写，且命中所有同名节点
func TestWriteDuplicateIDsLastWins(t *testing.T) {
	src := `<P><TEXT TbpeId="d">one</TEXT><TEXT TbpeId="d">two</TEXT></P>`
	e := New(Options{}, nil)
	doc := load(t, src)
	rep := e.Write(doc, []contract.ReconciledSpan{
		{ID: "d", HasID: true, Text: "A"},
		{ID: "d", HasID: true, Text: "B"},
	})
	out, err := doc.Serialize()
	require.NoError(t, err)
	assert.Equal(t, `<P><TEXT TbpeId="d">B</TEXT><TEXT TbpeId="d">B</TEXT></P>`, out)
	assert.Equal(t, 2, rep.Updated)
}

func TestWriteUnmatchedAndUnsupported(t *testing.T) {
	src := `<P><SIMPLE_TEXT TbpeId="norun"><TextBody>{"t":"p","c":"x"}</TextBody><RenderPos/></SIMPLE_TEXT>` +
		`<SIMPLE_TEXT TbpeId="nobody"><RenderPos/></SIMPLE_TEXT></P>`
	e := New(Options{}, nil)
	doc := load(t, src)
	assert.Empty(t, e.Locate(doc))

	rep := e.Write(doc, []contract.ReconciledSpan{
		{ID: "norun", HasID: true, Text: "x2"},
		{ID: "nobody", HasID: true, Text: "y"},
		{ID: "ghost", HasID: true, Text: "z"},
	})
	out, err := doc.Serialize()
	require.NoError(t, err)
	assert.Equal(t, src, out)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 0, rep.Updated)
	assert.Equal(t, []string{"ghost"}, rep.Unmatched)
}

func TestWriteCDataBody(t *testing.T) {
	src := `<P><SIMPLE_TEXT TbpeId="1"><TextBody><![CDATA[{"t":"r","c":["cd"]}]]></TextBody></SIMPLE_TEXT></P>`
	e := New(Options{}, nil)
	doc := load(t, src)
	spans := e.Locate(doc)
	require.Len(t, spans, 1)
	assert.Equal(t, "cd", spans[0].Text)

	e.Write(doc, []contract.ReconciledSpan{{ID: "1", HasID: true, Text: "new"}})
	out, err := doc.Serialize()
	require.NoError(t, err)
	assert.Contains(t, out, `<![CDATA[{"t":"r","c":["new"]}]]>`)
}

// 词汇可配置
func TestCustomVocabulary(t *testing.T) {
	src := `<P><T key="k"><Body>plain</Body><Cache/></T></P>`
	e := New(Options{FlatTag: "T", InnerTag: "Body", FlatCacheTag: "Cache", IDAttr: "key"}, nil)
	doc := load(t, src)
	spans := e.Locate(doc)
	require.Len(t, spans, 1)
	assert.Equal(t, "k", spans[0].ID)
	e.Write(doc, []contract.ReconciledSpan{{ID: "k", HasID: true, Text: "fancy"}})
	out, err := doc.Serialize()
	require.NoError(t, err)
	assert.Equal(t, `<P><T key="k"><Body>fancy</Body></T></P>`, out)
	assert.Equal(t, "SIMPLE_TEXT", e.Options().StructuredTag)
}
