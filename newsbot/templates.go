package newsbot

import (
	"fmt"
	"sort"
	"strings"
)

const (
	upvoteGif = "https://i.imgur.com/HRoxTzg.gif"

	// modmailCloseMessage is the canned reply for the mmc command
	modmailCloseMessage = "```=aclose Situation resolved, please only reply if there is something else.```"

	pingPreviewsText = "**Patch Notes**\n" +
		"- New Wave: `3.XX Wave X Release`\n" +
		"- PTU Update: `3.XX PTU Update`\n" +
		"- Live Update: `3.XX LIVE Update`\n" +
		"\n" +
		"**SC News**\n" +
		"- ISC: `Inside Star Citizen`\n" +
		"- SCL: `Star Citizen Live`\n" +
		"- Progress Tracker: `Progress Tracker Update`\n" +
		"- Roadmap: `Roadmap Roundup`\n" +
		"- SC Monthly Report: `Star Citizen Monthly Report`\n" +
		"- SQ42 Monthly Report: `Squadron 42 Monthly Report`\n" +
		"- Dynamic Event: `Event Name PU/PTU`\n" +
		"\n" +
		"**General News**\n" +
		"- Sneak Peek: `Weekly Sneak Peek`\n" +
		"- Lore Post: `Lore Post: Name`\n" +
		"- Dev Reply: `Dev Reply`\n" +
		"- Subscriber Items: `Month Subscriber Promotions`\n" +
		"- JP: `Jump Point`"

	idsText = "__**Channels:**__\n" +
		"Server News - `1113146864804573285`\n" +
		"Patch Notes - `585952222853201941`\n" +
		"SC News - `569635458183856149`\n" +
		"General News - `803341100618219540`\n" +
		"\n" +
		"__**Roles:**__\n" +
		"Server News - `1113152142300156004`\n" +
		"Patch Notes - `620025894559547412`\n" +
		"SC News - `620025828079697920`\n" +
		"General News - `803343410794594385`\n" +
		"\n" +
		"__**Where to post what:**__\n" +
		"[Check here](https://discord.com/channels/82210263440306176/611922107345141760/1113905662217441330) " +
		"for a guide on what post types go where."
)

// Template is a named preset for a new draft
type Template struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Apply copies the template's fields onto d
func (t Template) Apply(d *Draft) {
	if t.Title != "" {
		d.Title = t.Title
	}
	if t.Body != "" {
		d.Body = reformatDescription(t.Body)
	}
}

var templates = map[string]Template{
	"isc":          {Name: "isc", Title: "Inside Star Citizen | [topic] - [subtopic]"},
	"scl":          {Name: "scl", Title: "Star Citizen Live | [topic] - [subtopic]"},
	"tracker":      {Name: "tracker", Title: "Progress Tracker Update | [date]"},
	"roundup":      {Name: "roundup", Title: "Roadmap Roundup | [date]"},
	"patchnotes":   {Name: "patchnotes", Title: "Star Citizen Alpha X.XX.X XPTU.XXXXXXX Patch Notes"},
	"galactapedia": {Name: "galactapedia", Title: "Weekly Sneak Peek | [date]"},
	"devreply":     {Name: "devreply", Title: "Dev Reply | Topic"},
	"twisc":        {Name: "twisc", Title: "This Week in Star Citizen | Week of [date]"},
}

// lookupTemplate finds a template by name, case-insensitively
func lookupTemplate(name string) (Template, bool) {
	t, ok := templates[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// templateNames returns all template names, sorted
func templateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// listTemplates returns every template, sorted by name
func listTemplates() []Template {
	names := templateNames()
	rv := make([]Template, 0, len(names))
	for _, name := range names {
		rv = append(rv, templates[name])
	}
	return rv
}

func templateListText() string {
	var sb strings.Builder
	sb.WriteString("Here are all of the available templates: ```\n")
	for _, name := range templateNames() {
		sb.WriteString("- ")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	sb.WriteString("```")
	return sb.String()
}

func templateNotFoundText(prefix string) string {
	return fmt.Sprintf(
		"Could not find that template. Use `%stemplates list` to list all available templates.",
		prefix,
	)
}

func instructionsText(prefix string) string {
	return strings.Join(
		[]string{
			"1. Title should not use any formatting.",
			"2. \"Video\" should only be used for YouTube or video links with pretty embeds.",
			"3. URL should be used for any regular link such as a comm-link.",
			"4. In the description box, use `-` and it will replace it with `➣`, use `+` and it will " +
				"replace it with `✦` preceeded by three spaces.",
			fmt.Sprintf("5. Use the `%sids` commands to get the channel and role IDs.", prefix),
			"6. Do not ping for every post if there are consecutive posts in the same channel, instead " +
				"ping only on the final post and provide an overall preview.",
			fmt.Sprintf("7. **ALWAYS** include a ping preview, you can find these using `%spreviews`.", prefix),
			"8. Always select publish unless explicitly not needed (server only announcements).",
		},
		"\n",
	)
}
