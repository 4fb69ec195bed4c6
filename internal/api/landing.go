package api

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Statute Retrieval Service</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", "PingFang SC", "Microsoft YaHei", sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; box-shadow: 0 25px 50px rgba(0,0,0,0.4); }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section { margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin-bottom: 0.5rem; }
  a { color: #38bdf8; text-decoration: none; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; }
  code { font-family: "SF Mono", "Fira Code", Menlo, monospace; }
  .status { display: inline-block; width: 8px; height: 8px; background: #22c55e; border-radius: 50%; margin-right: 0.5rem; }
  .endpoint { font-family: "SF Mono", monospace; font-size: 0.9rem; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>法律法规检索服务</h1>
  <p class="subtitle">Semantic search over the <code>{{.Collection}}</code> statute collection.</p>

  <div class="section">
    <div class="section-title">Try it</div>
    <pre><code>curl -s {{.Base}}/search -d '{"query":"违约责任","top_k":3}'</code></pre>
  </div>

  <div class="section">
    <div class="section-title">Endpoints</div>
    <p><span class="status"></span><span class="endpoint">POST /search</span> &mdash; ranked statute chunks</p>
    <p><span class="status"></span><span class="endpoint">POST /get_context</span> &mdash; rendered context for case facts</p>
    <p><span class="status"></span><a href="/stats" class="endpoint">GET /stats</a> &mdash; collection statistics</p>
    <p><span class="status"></span><a href="/health" class="endpoint">GET /health</a> &mdash; health check</p>
    {{if .MCP}}<p><span class="status"></span><a href="/mcp" class="endpoint">/mcp</a> &mdash; MCP Streamable HTTP</p>{{end}}
  </div>
</div>
</body>
</html>`))

type landingData struct {
	Collection string
	MCP        bool
	Base       string
}

// landingHandler serves the landing page at /. The curl example points at the
// host the page was requested from.
func landingHandler(collection string, withMCP bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}

		var buf bytes.Buffer
		err := landingTemplate.Execute(&buf, landingData{
			Collection: collection,
			MCP:        withMCP,
			Base:       scheme + "://" + c.Request.Host,
		})
		if err != nil {
			writeErrorCode(c, http.StatusInternalServerError, CodeInternal, "render landing page: "+err.Error())
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	}
}
