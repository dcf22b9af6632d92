package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTMLRemovesEncodedTags(t *testing.T) {
	assert.Equal(t, "hail on field 3", StripHTML("<b>hail</b> on field 3"))
	assert.Equal(t, "alert(1)", StripHTML("&lt;script&gt;alert(1)&lt;/script&gt;"))
	assert.Equal(t, "crops & soil", StripHTML("crops &amp; soil"))
}

func TestTextNormalizesWhitespace(t *testing.T) {
	in := "  Flooded   since Monday.\r\n\r\n\r\n\tNorth plot\t\tlost.  "
	assert.Equal(t, "Flooded since Monday.\n\nNorth plot lost.", Text(in))
}

func TestTextPtr(t *testing.T) {
	assert.Nil(t, TextPtr(nil))

	in := " <i>maize</i> "
	assert.Equal(t, "maize", *TextPtr(&in))
}
