package printer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// lpstatCommand is a var so tests can point it at a fake.
var lpstatCommand = "lpstat"

// List returns the printers a user can select: configured aliases first, then
// CUPS queues. A host without lpstat yields aliases only.
func List(ctx context.Context, aliases map[string]string) ([]string, error) {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	queues, err := listCUPSQueues(ctx)
	if err != nil {
		return names, err
	}

	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, q := range queues {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		names = append(names, q)
	}
	return names, nil
}

func listCUPSQueues(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, lpstatCommand, "-e").Output()
	if err != nil {
		if isNotInstalled(err) {
			return nil, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// lpstat exits non-zero when no scheduler or no destinations exist.
			return nil, nil
		}
		return nil, fmt.Errorf("list cups queues: %w", err)
	}
	return parseQueueList(out), nil
}

func parseQueueList(out []byte) []string {
	var queues []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		queues = append(queues, strings.Fields(line)[0])
	}
	sort.Strings(queues)
	return queues
}
