package prompts

import _ "embed"

//go:embed commit.md.tmpl
var CommitTemplate string

//go:embed branch.md.tmpl
var BranchTemplate string

//go:embed changelog.md.tmpl
var ChangelogTemplate string

//go:embed changelog_merge.md.tmpl
var ChangelogMergeTemplate string

//go:embed pr.md.tmpl
var PRTemplate string

//go:embed deslop.md.tmpl
var DeslopTemplate string
