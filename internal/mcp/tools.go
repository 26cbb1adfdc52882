package mcp

import "github.com/mark3labs/mcp-go/mcp"

var chapterListToolDef = mcp.NewTool("chapter_list",
	mcp.WithDescription("List chapters in outline order with per-part draft sizes."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 50, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip (default 0)")),
)

var chapterFetchToolDef = mcp.NewTool("chapter_fetch",
	mcp.WithDescription("Fetch one chapter's title, context, and all three draft parts. "+
		"Out-of-range indexes are clamped to the first or last chapter; the response carries the index used."),
	mcp.WithNumber("chapter", mcp.Required(), mcp.Description("Zero-based chapter index")),
)

var draftUpdateToolDef = mcp.NewTool("draft_update",
	mcp.WithDescription("Replace one part of a chapter draft with the given text and save the store."),
	mcp.WithNumber("chapter", mcp.Required(), mcp.Description("Zero-based chapter index")),
	mcp.WithNumber("part", mcp.Required(), mcp.Description("Part number: 1, 2, or 3")),
	mcp.WithString("text", mcp.Required(), mcp.Description("New part text (stored verbatim)")),
)

var draftGenerateToolDef = mcp.NewTool("draft_generate",
	mcp.WithDescription("Generate one part of a chapter with the backend, sanitize it, and save it. "+
		"Only one generation runs at a time; a concurrent call fails with BUSY. "+
		"Parts 2 and 3 continue from the tail of the previous part."),
	mcp.WithNumber("chapter", mcp.Required(), mcp.Description("Zero-based chapter index")),
	mcp.WithNumber("part", mcp.Required(), mcp.Description("Part number: 1, 2, or 3")),
)

var draftExportToolDef = mcp.NewTool("draft_export",
	mcp.WithDescription("Compile all drafted chapters into a manuscript file."),
	mcp.WithString("path", mcp.Description("Destination (.md or .html); default: ~/.loom/exports/manuscript-<timestamp>")),
	mcp.WithString("format", mcp.Description("markdown or html; inferred from path when omitted"), mcp.Enum("markdown", "html")),
	mcp.WithString("title", mcp.Description("Optional manuscript heading")),
)

var jobHistoryToolDef = mcp.NewTool("job_history",
	mcp.WithDescription("List recent generation jobs, newest first."),
	mcp.WithNumber("chapter", mcp.Description("Only jobs for this zero-based chapter index")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
)

var jobStatusToolDef = mcp.NewTool("job_status",
	mcp.WithDescription("Report whether a generation is running and the outcome of the last job."),
)
