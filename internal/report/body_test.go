package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeBody(t *testing.T) {
	want := "***Issue submitted via [PipeBot](https://github.com/scottdmilner/pipebot)***\n" +
		"**Reporting user:** Jane\n" +
		"\n" +
		"---\n" +
		"\n" +
		"Maya hangs when exporting.\n"

	assert.Equal(t, want, composeBody("Jane", "Maya hangs when exporting.", [2]string{}))
}

func TestComposeBodyImages(t *testing.T) {
	both := composeBody("Jane", "desc", [2]string{"https://a/1.png", "https://a/2.png"})
	assert.Contains(t, both, "desc\n\n\nImage 1:\n![image 1](https://a/1.png)\n\nImage 2:\n![image 2](https://a/2.png)")

	second := composeBody("Jane", "desc", [2]string{"", "https://a/2.png"})
	assert.Contains(t, second, "Image 2:\n![image 2](https://a/2.png)")
	assert.NotContains(t, second, "Image 1")
}
