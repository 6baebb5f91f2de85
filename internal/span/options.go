package span

// Options 描述两种编码形态的标记词汇；零值字段取默认。
type Options struct {
	StructuredTag      string `json:"structured_tag"`
	BodyTag            string `json:"body_tag"`
	StructuredCacheTag string `json:"structured_cache_tag"`
	FlatTag            string `json:"flat_tag"`
	InnerTag           string `json:"inner_tag"`
	FlatCacheTag       string `json:"flat_cache_tag"`
	IDAttr             string `json:"id_attr"`
	// TreeCacheSize: run 树解析缓存容量（<=0 取默认）。
	TreeCacheSize int `json:"tree_cache_size"`
}

// DefaultOptions 返回遗留文档的默认词汇。
func DefaultOptions() Options {
	return Options{
		StructuredTag:      "SIMPLE_TEXT",
		BodyTag:            "TextBody",
		StructuredCacheTag: "RenderPos",
		FlatTag:            "TEXT",
		InnerTag:           "Text",
		FlatCacheTag:       "TextData",
		IDAttr:             "TbpeId",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&o.StructuredTag, d.StructuredTag)
	fill(&o.BodyTag, d.BodyTag)
	fill(&o.StructuredCacheTag, d.StructuredCacheTag)
	fill(&o.FlatTag, d.FlatTag)
	fill(&o.InnerTag, d.InnerTag)
	fill(&o.FlatCacheTag, d.FlatCacheTag)
	fill(&o.IDAttr, d.IDAttr)
	return o
}
