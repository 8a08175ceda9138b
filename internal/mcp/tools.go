package mcp

import "github.com/mark3labs/mcp-go/mcp"

var entryCreateToolDef = mcp.NewTool("entry_create",
	mcp.WithDescription("Create a journal entry from markdown content. Records the initial version and writes the markdown mirror."),
	mcp.WithString("content", mcp.Required(), mcp.Description("Full markdown content (may be empty)")),
)

var entryGetToolDef = mcp.NewTool("entry_get",
	mcp.WithDescription("Open a journal entry: content, title and derived metadata (word count, tags, read time)."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry ID")),
)

var entryUpdateToolDef = mcp.NewTool("entry_update",
	mcp.WithDescription("Replace an entry's content. Appends a new version; history is never rewritten."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry ID")),
	mcp.WithString("content", mcp.Required(), mcp.Description("New full markdown content")),
)

var entryDeleteToolDef = mcp.NewTool("entry_delete",
	mcp.WithDescription("Permanently delete an entry, its version history and its markdown mirror."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry ID")),
)

var entryListToolDef = mcp.NewTool("entry_list",
	mcp.WithDescription("List entry summaries, most recently updated first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var entrySearchToolDef = mcp.NewTool("entry_search",
	mcp.WithDescription("Case-insensitive substring search over entry content. Returns summaries with highlighted snippets."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Text to find")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var entryTitleToolDef = mcp.NewTool("entry_title",
	mcp.WithDescription("Derive a display title from markdown content without storing anything."),
	mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
)

var entryRenderToolDef = mcp.NewTool("entry_render",
	mcp.WithDescription("Render an entry (by id) or raw markdown content to HTML."),
	mcp.WithString("id", mcp.Description("Entry ID")),
	mcp.WithString("content", mcp.Description("Markdown content, used when id is not given")),
)

var versionListToolDef = mcp.NewTool("version_list",
	mcp.WithDescription("List an entry's versions, newest first. Unknown entries yield an empty list."),
	mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry ID")),
)

var versionGetToolDef = mcp.NewTool("version_get",
	mcp.WithDescription("Get one version's full snapshot."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Version ID")),
)

var versionChangesToolDef = mcp.NewTool("version_changes",
	mcp.WithDescription("Get the change list recorded with a version."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Version ID")),
)

var versionRestoreToolDef = mcp.NewTool("version_restore",
	mcp.WithDescription("Make a past version's content current. Appends a new version."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Version ID")),
)

var mirrorRepairToolDef = mcp.NewTool("mirror_repair",
	mcp.WithDescription("Rewrite markdown mirrors that are missing or differ from the index."),
)

var mirrorVerifyToolDef = mcp.NewTool("mirror_verify",
	mcp.WithDescription("Check an entry's version history and mirror for consistency."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry ID")),
)

var journalExportToolDef = mcp.NewTool("journal_export",
	mcp.WithDescription("Export all entries and their version histories to a JSONL file."),
	mcp.WithString("path", mcp.Description("Output path (default: ~/.momentum/exports/journal-<timestamp>.jsonl)")),
)

var journalImportToolDef = mcp.NewTool("journal_import",
	mcp.WithDescription("Import entries and version histories from a JSONL export."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to the export file")),
	mcp.WithString("mode", mcp.Description("Collision mode"), mcp.Enum("error", "replace", "rename")),
)
