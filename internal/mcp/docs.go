package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `rollcall publishes one school headcount record: total, boys, girls, lastUpdated.

Reading:
- get_stats returns what this server currently shows. With a share token it returns the newer of the two
  without changing the server's record; an unreadable token is ignored.
- decode_snapshot reads a share token without changing anything.

Editing (requires the admin secret over HTTP):
1) open_edit_session to get a draft of the current record.
2) set_field for boys, girls or total. Editing boys or girls recomputes total; editing total
   adjusts girls (or both, depending on the configured policy). Negative input becomes 0.
3) publish_stats stamps the draft, stores it and announces it to every open dashboard.

The newest lastUpdated always wins; an older share link never overwrites newer data.

Docs: rollcall://docs/model
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "rollcall://docs/model",
		Name:        "docs_model",
		Title:       "rollcall data model",
		Description: "The stats record, share tokens and how contexts converge.",
		Content: `# rollcall data model

## Record

` + "```json" + `
{"total": 140, "boys": 60, "girls": 80, "lastUpdated": "2024-05-01T10:00:00Z"}
` + "```" + `

A published record always has total = boys + girls and no negative counts.

## Share tokens

A token is the record's JSON in URL-safe base64. It travels in the ` + "`d`" + ` query parameter.
Tokens are accepted with or without padding and in either base64 alphabet. Numeric strings
are coerced; anything non-numeric becomes 0.

## Convergence

Every dashboard holds a copy of the record. On load, on storage changes, on broadcasts, on
focus and on a periodic poll, it keeps whichever copy has the latest lastUpdated. Equal
timestamps keep the copy already shown.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
