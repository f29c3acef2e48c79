package iac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

func TestParsePlanOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []models.ResourceChange
	}{
		{
			name:   "create and update",
			output: "  # aws_instance.web will be created\n  ~ aws_instance.db will be updated in-place\n",
			want: []models.ResourceChange{
				{Address: "aws_instance.web", Action: models.ActionCreate},
				{Address: "aws_instance.db", Action: models.ActionUpdate},
			},
		},
		{
			name: "destroy and replace",
			output: `  # aws_instance.old will be destroyed
  # aws_instance.app must be replaced
-/+ resource "aws_instance" "app" {`,
			want: []models.ResourceChange{
				{Address: "aws_instance.old", Action: models.ActionDelete},
				{Address: "aws_instance.app", Action: models.ActionReplace},
			},
		},
		{
			name:   "indexed address with quotes",
			output: `  # module.vpc.aws_subnet.private["us-east-1a"] will be created`,
			want: []models.ResourceChange{
				{Address: "module.vpc.aws_subnet.private[us-east-1a]", Action: models.ActionCreate},
			},
		},
		{
			name:   "first occurrence wins",
			output: "  ~ aws_s3_bucket.logs will be updated\n  # aws_s3_bucket.logs will be destroyed\n  ~ aws_s3_bucket.logs {\n",
			want: []models.ResourceChange{
				{Address: "aws_s3_bucket.logs", Action: models.ActionUpdate},
			},
		},
		{
			name:   "nested attribute change",
			output: "  ~ tags ~ {\n",
			want: []models.ResourceChange{
				{Address: "tags", Action: models.ActionUpdate},
			},
		},
		{
			name:   "no changes",
			output: "No changes. Your infrastructure matches the configuration.\n",
			want:   []models.ResourceChange{},
		},
		{
			name:   "summary lines are ignored",
			output: "Plan: 1 to add, 0 to change, 0 to destroy.\n      + ami = \"ami-123\"\n",
			want:   []models.ResourceChange{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePlanOutput(tt.output)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlanOutputLongLines(t *testing.T) {
	huge := "  + user_data = \"" + strings.Repeat("x", 5*1024*1024) + "\"\r\n"
	output := "  # aws_instance.web will be created\r\n" + huge + "  # aws_instance.db will be destroyed\r\n"

	assert.Equal(t, []models.ResourceChange{
		{Address: "aws_instance.web", Action: models.ActionCreate},
		{Address: "aws_instance.db", Action: models.ActionDelete},
	}, ParsePlanOutput(output))
}

func TestDecoder(t *testing.T) {
	t.Run("utf-8 passthrough", func(t *testing.T) {
		assert.Equal(t, "ação", NewDecoder("UTF-8").Decode([]byte("ação")))
	})

	t.Run("invalid utf-8 is replaced", func(t *testing.T) {
		assert.Equal(t, "a�b", NewDecoder("").Decode([]byte{'a', 0xff, 'b'}))
	})

	t.Run("latin-1", func(t *testing.T) {
		assert.Equal(t, "ação", NewDecoder("ISO-8859-1").Decode([]byte{'a', 0xe7, 0xe3, 'o'}))
	})

	t.Run("unknown charset falls back", func(t *testing.T) {
		assert.Equal(t, "ok", NewDecoder("not-a-charset").Decode([]byte("ok")))
	})
}

func TestLocaleCodeset(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"lang", map[string]string{"LANG": "pt_BR.ISO-8859-1"}, "ISO-8859-1"},
		{"lc_all wins", map[string]string{"LC_ALL": "en_US.UTF-8", "LANG": "pt_BR.ISO-8859-1"}, "UTF-8"},
		{"modifier stripped", map[string]string{"LC_CTYPE": "de_DE.ISO-8859-15@euro"}, "ISO-8859-15"},
		{"posix", map[string]string{"LANG": "C"}, ""},
		{"unset", map[string]string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocaleCodeset(func(k string) string { return tt.env[k] }))
		})
	}
}
