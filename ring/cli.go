package ring

// cli.go: a thin command layer over a running node. It does not own the
// node's lifecycle; it only issues commands to it.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// CLI drives one node from a line-oriented stream.
type CLI struct {
	node     *Node
	replicas int
	in       io.Reader
	out      io.Writer
	quit     func()
}

// NewCLI constructs a CLI over the provided node. replicas is the
// replication factor used by store/read/write/locate; quit is invoked on
// "exit".
func NewCLI(node *Node, replicas int, in io.Reader, out io.Writer, quit func()) *CLI {
	if quit == nil {
		quit = func() {}
	}
	return &CLI{node: node, replicas: replicas, in: in, out: out, quit: quit}
}

// RunLine executes a single command line.
//
//	store <file> <content>   distribute a new file
//	read <file>              print the primary copy
//	write <file> <content>   update all replicas through the primary
//	locate <file>            list the replica set
//	state                    dump neighborhood, fingers and replicas
//	exit                     calls quit() and returns io.EOF
func (cli *CLI) RunLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "store", "write":
		if len(fields) < 3 {
			fmt.Fprintln(cli.out, "ERR usage:", cmd, "<file> <content>")
			return fmt.Errorf("%s: missing argument", cmd)
		}
		name := fields[1]
		content := []byte(strings.Join(fields[2:], " "))
		if cmd == "store" {
			stored, err := cli.node.Distribute(name, content, cli.replicas)
			if err != nil {
				fmt.Fprintf(cli.out, "ERR %v\n", err)
				return err
			}
			fmt.Fprintf(cli.out, "stored %d/%d replicas\n", stored, cli.replicas)
			return nil
		}
		if err := cli.node.Write(name, content, cli.replicas); err != nil {
			fmt.Fprintf(cli.out, "ERR %v\n", err)
			return err
		}
		fmt.Fprintln(cli.out, "committed")
		return nil

	case "read":
		if len(fields) != 2 {
			fmt.Fprintln(cli.out, "ERR usage: read <file>")
			return errors.New("read: missing argument")
		}
		content, from, err := cli.node.Read(fields[1], cli.replicas)
		if err != nil {
			fmt.Fprintln(cli.out, "NOTFOUND")
			return err
		}
		fmt.Fprintf(cli.out, "%s\nfrom %s\n", content, from.Address)
		return nil

	case "locate":
		if len(fields) != 2 {
			fmt.Fprintln(cli.out, "ERR usage: locate <file>")
			return errors.New("locate: missing argument")
		}
		set, err := cli.node.Locate(fields[1], cli.replicas)
		if err != nil {
			fmt.Fprintf(cli.out, "ERR %v\n", err)
			return err
		}
		table := tablewriter.NewWriter(cli.out)
		table.SetHeader([]string{"Key", "Owner", "Primary", "Bytes"})
		for _, r := range set {
			table.Append([]string{
				r.Meta.ReplicaKey.String(),
				r.Owner.Address,
				strconv.FormatBool(r.Meta.Primary),
				strconv.Itoa(len(r.Meta.Content)),
			})
		}
		table.Render()
		return nil

	case "state":
		cli.dumpState()
		return nil

	case "exit":
		cli.quit()
		return io.EOF

	default:
		fmt.Fprintln(cli.out, "ERR commands: store, read, write, locate, state, exit")
		return errors.New("unknown command")
	}
}

// Run starts a REPL on cli.in until EOF or "exit".
func (cli *CLI) Run() error {
	sc := bufio.NewScanner(cli.in)
	for sc.Scan() {
		if err := cli.RunLine(sc.Text()); err == io.EOF {
			return nil
		}
	}
	return sc.Err()
}

func (cli *CLI) dumpState() {
	node := cli.node

	hood := tablewriter.NewWriter(cli.out)
	hood.SetHeader([]string{"Link", "ID", "Address"})
	if pred, ok := node.Predecessor(); ok {
		hood.Append([]string{"pred", pred.ID.String(), pred.Address})
	} else {
		hood.Append([]string{"pred", "", "(none)"})
	}
	hood.Append([]string{"self", node.Me().ID.String(), node.Me().Address})
	succ := node.Successor()
	hood.Append([]string{"succ", succ.ID.String(), succ.Address})
	hood.Render()

	fingers := tablewriter.NewWriter(cli.out)
	fingers.SetHeader([]string{"Slot", "Start", "ID", "Address"})
	table := node.Fingers()
	// Collapse consecutive slots pointing at the same node.
	for i := 0; i < M; {
		j := i
		for j+1 < M && table[j+1] == table[i] {
			j++
		}
		slot := strconv.Itoa(i)
		if j > i {
			slot = fmt.Sprintf("%d-%d", i, j)
		}
		if table[i].Empty() {
			fingers.Append([]string{slot, FingerStart(node.Me().ID, i).String(), "", "(unset)"})
		} else {
			fingers.Append([]string{slot, FingerStart(node.Me().ID, i).String(), table[i].ID.String(), table[i].Address})
		}
		i = j + 1
	}
	fingers.Render()

	replicas := tablewriter.NewWriter(cli.out)
	replicas.SetHeader([]string{"Key", "File", "Primary", "Bytes"})
	for _, meta := range node.Replicas() {
		replicas.Append([]string{
			meta.ReplicaKey.String(),
			meta.Filename,
			strconv.FormatBool(meta.Primary),
			strconv.Itoa(len(meta.Content)),
		})
	}
	replicas.Render()
}
