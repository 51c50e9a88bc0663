package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/monty/opcodes"
)

func TestFunctionRecordName(t *testing.T) {
	fn := &FunctionRecord{
		Name:          "greet",
		Params:        []Parameter{{Name: "name", NamespaceSlot: 0}},
		NamespaceSize: 1,
		Body:          []opcodes.Instruction{{Op: opcodes.OpReturnNone}},
	}
	assert.Equal(t, "greet", fn.FunctionName())
	assert.Len(t, fn.Params, 1)
}

func TestTableHoldsFunctions(t *testing.T) {
	tbl := &Table{Functions: []*FunctionRecord{
		{Name: "a"},
		{Name: "b"},
	}}
	assert.Len(t, tbl.Functions, 2)
}
