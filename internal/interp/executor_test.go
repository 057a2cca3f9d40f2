package interp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := e.Run(ctx, `
import "fmt"
fmt.Println("hello from the sandbox")
`)
	require.NoError(t, err)
	require.Contains(t, res.Stdout, "hello from the sandbox")
}

func TestRun_RejectsForbiddenImport(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := e.Run(ctx, `
import "os"
os.Exit(1)
`)
	require.ErrorIs(t, err, errs.InvalidArgument)
}

func TestRun_TimesOut(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Run(ctx, `
for {
}
`)
	require.Error(t, err)
}

func TestRun_ComputesValue(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := e.Run(ctx, `
import (
	"fmt"
	"strconv"
)
sum := 0
for i := 1; i <= 5; i++ {
	sum += i
}
fmt.Println(strconv.Itoa(sum))
`)
	require.NoError(t, err)
	require.True(t, strings.Contains(res.Stdout, "15"))
}
