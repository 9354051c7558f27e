package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/leofalp/devforge/internal/pipeline"
)

// PromptApprover asks on out and reads a yes/no answer from in. An empty
// answer approves; end of input leaves the decision pending.
func PromptApprover(in io.Reader, out io.Writer) pipeline.Approver {
	var mu sync.Mutex
	reader := bufio.NewReader(in)

	return func(ctx context.Context, analysis map[string]any) (pipeline.Decision, error) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintln(out, titleStyle.Render("Approval required"))
		for _, key := range []string{"project_name", "project_type", "description"} {
			if v, ok := analysis[key].(string); ok && v != "" {
				fmt.Fprintf(out, "  %-13s %s\n", key+":", v)
			}
		}
		if features, ok := analysis["features"].([]any); ok {
			fmt.Fprintf(out, "  %-13s %d\n", "features:", len(features))
		}

		for {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			fmt.Fprint(out, "Generate this project? [Y/n] ")
			line, err := reader.ReadString('\n')
			answer := strings.ToLower(strings.TrimSpace(line))
			if err != nil && answer == "" {
				if err == io.EOF {
					fmt.Fprintln(out)
					return pipeline.Pending, nil
				}
				return "", err
			}
			switch answer {
			case "", "y", "yes":
				return pipeline.Approved, nil
			case "n", "no":
				return pipeline.Cancelled, nil
			}
			fmt.Fprintln(out, dimStyle.Render("please answer y or n"))
		}
	}
}
