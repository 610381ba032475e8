package report

import (
	"fmt"
	"strings"
)

const bodyHeader = "***Issue submitted via [PipeBot](https://github.com/scottdmilner/pipebot)***\n"

// composeBody renders the issue body. imageURLs holds one entry per slot;
// empty entries are omitted but keep their slot number.
func composeBody(displayName, description string, imageURLs [2]string) string {
	var b strings.Builder
	b.WriteString(bodyHeader)
	fmt.Fprintf(&b, "**Reporting user:** %s\n", displayName)
	b.WriteString("\n---\n\n")
	b.WriteString(description)
	b.WriteString("\n")

	for i, url := range imageURLs {
		if url == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\nImage %d:\n![image %d](%s)", i+1, i+1, url)
	}
	return b.String()
}
