package web

import "embed"

// Templates 控制台页面的 HTML 模板。
//
//go:embed templates/*.html
var Templates embed.FS

// Static 控制台静态资源（CSS/JS）。
//
//go:embed static
var Static embed.FS
