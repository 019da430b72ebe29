package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var exampleComments = map[string]string{
	`mode`:                  "production: each channel worker drains itself\ndeterministic: workers only drain when driven externally",
	`channels`:              `one serialized worker (and state synchronizer) per channel`,
	`logging`:               `structured JSON logs`,
	`logging.level`:         `disabled, emerg, alert, crit, err, warning, notice, info, debug, or trace`,
	`logging.output`:        `stdout, stderr, or a file path`,
	`sync.debounce`:         `delay after the last mutation, before a sync is attempted`,
	`sync.max_retries`:      `attempts before a change set is dropped`,
	`sync.retry_backoff`:    `multiplied by the attempt number`,
	`sync.rate_limits`:      "per lane, e.g.\n- window: 1m\n  events: 10",
	`focus.unfocused_delay`: `how long focus must be lost before unfocused callbacks run`,
	`poller.quantum`:        `maximum blocking wait per poll, while the clock is not frozen`,
}

// DumpExample writes the default configuration, as annotated YAML.
func DumpExample(w io.Writer) error {
	var doc yaml.Node
	if err := doc.Encode(Default()); err != nil {
		return fmt.Errorf("config: failed to encode example: %w", err)
	}
	annotate(&doc, ``)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("config: failed to write example: %w", err)
	}
	return enc.Close()
}

func annotate(node *yaml.Node, prefix string) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		path := key.Value
		if prefix != `` {
			path = prefix + `.` + path
		}
		if comment, ok := exampleComments[path]; ok {
			key.HeadComment = comment
		}
		annotate(value, path)
	}
}
