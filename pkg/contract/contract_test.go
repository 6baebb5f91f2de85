package contract

import (
    "errors"
    "path/filepath"
    "testing"
)

// 页面路径在不同平台上产生同一 FileID
func TestNormalizeFileID(t *testing.T) {
    deck := filepath.Join("decks", "q3", "p1_cover.xml")
    tests := []struct {
        name string
        in   string
        want string
    }{
        {"本地分隔符", deck, "decks/q3/p1_cover.xml"},
        {"反斜杠", `decks\q3\p1_cover.xml`, "decks/q3/p1_cover.xml"},
        {"混合分隔符", `decks\q3/p2_body.xml`, "decks/q3/p2_body.xml"},
        {"多余斜杠与点", "decks//./q3///p3_chart.xml", "decks/q3/p3_chart.xml"},
        {"父目录折叠", "decks/old/../q3/p4_end.xml", "decks/q3/p4_end.xml"},
        {"逃逸保留", `..\shared\p5_logo.xml`, "../shared/p5_logo.xml"},
        {"绝对路径", "/srv/pages/../decks/p6_x.xml", "/srv/decks/p6_x.xml"},
        {"盘符", `C:\exports\p7_y.xml`, "C:/exports/p7_y.xml"},
        {"非 ASCII", `幻灯片\p8_总结.xml`, "幻灯片/p8_总结.xml"},
        {"stdin", "stdin", "stdin"},
        {"空", "", "."},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            if got := NormalizeFileID(tt.in); string(got) != tt.want {
                t.Errorf("NormalizeFileID(%q) = %q, want %q", tt.in, got, tt.want)
            }
        })
    }
}

// TestFileIDStem 验证去目录与扩展名。
func TestFileIDStem(t *testing.T) {
    cases := map[FileID]string{
        "a/b/12_page.xml": "12_page",
        "x.xml":           "x",
        "dir/noext":       "noext",
        "dir/a.b.xml":     "a.b",
    }
    for in, want := range cases {
        if got := in.Stem(); got != want {
            t.Fatalf("Stem(%q)=%q, 预期 %q", in, got, want)
        }
    }
}

// TestEncodingOrder 抽取顺序固定：先 structured 后 flat。
func TestEncodingOrder(t *testing.T) {
    encs := Encodings()
    if len(encs) != 2 || encs[0] != StructuredText || encs[1] != FlatText {
        t.Fatalf("顺序错误: %v", encs)
    }
    if StructuredText.String() != "structured" || FlatText.String() != "flat" || Encoding(0).String() != "unknown" {
        t.Fatalf("String 不符")
    }
}

// TestVariantsAndResult 变体顺序与结果形态判定。
func TestVariantsAndResult(t *testing.T) {
    vs := Variants()
    if len(vs) != 2 || vs[0] != Positive || vs[1] != Negative {
        t.Fatalf("变体顺序错误: %v", vs)
    }
    if (RewriteResult{Bare: "x"}).Structured() {
        t.Fatalf("裸字符串不应视为映射")
    }
    if !(RewriteResult{Variants: map[Variant]string{}}).Structured() {
        t.Fatalf("空映射仍是映射形态")
    }
}

// TestSentinelsDistinct 哨兵错误两两不同。
func TestSentinelsDistinct(t *testing.T) {
    all := []error{ErrParseFailure, ErrEncodingUnsupported, ErrExternalCall, ErrFileIO, ErrPathInvalid,
        ErrBudgetExceeded, ErrInvariantViolation, ErrRateLimited, ErrResponseInvalid, ErrInvalidInput}
    for i := range all {
        for j := range all {
            if i != j && errors.Is(all[i], all[j]) {
                t.Fatalf("%v 与 %v 不应等价", all[i], all[j])
            }
        }
    }
}
