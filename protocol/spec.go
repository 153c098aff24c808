package protocol

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datazip-inc/filetap/types"
	"github.com/datazip-inc/filetap/utils/spec"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "spec command",
	RunE: func(_ *cobra.Command, _ []string) error {
		uiSchema, err := spec.LoadUISchema(connector.Type())
		if err != nil {
			return fmt.Errorf("failed to get ui schema: %v", err)
		}

		return output.EmitNow(&types.Message{
			Type: types.SpecMessage,
			Spec: map[string]any{
				"jsonschema": connector.Spec(),
				"uischema":   uiSchema,
			},
		})
	},
}
