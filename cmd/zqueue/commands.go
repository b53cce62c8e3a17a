package main

import (
	"context"
	"errors"
	"fmt"

	queue "github.com/jrhy/zqueue"
	"github.com/jrhy/zqueue/internal/logging"
	"github.com/jrhy/zqueue/persist/file"
	"github.com/jrhy/zqueue/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	dir        string
	queue      string
	bucketSize int
	flat       bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:          "zqueue",
		Short:        "Persistent FIFO queues with conflict-resolving commits",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.dir, "dir", ".zqueue", "directory holding the queues")
	pf.StringVar(&o.queue, "queue", "main", "name of the queue")
	pf.IntVar(&o.bucketSize, "bucket-size", queue.DefaultTargetBucketSize, "target bucket size for new composite queues")
	pf.BoolVar(&o.flat, "flat", false, "create new queues as a single flat queue")
	pf.StringVar(&o.logLevel, "log-level", logging.LevelInfo, "debug, info, warn, error or none")
	root.AddCommand(o.putCmd(), o.pullCmd(), o.lsCmd(), o.lenCmd())
	return root
}

func (o *options) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put ITEM...",
		Short: "Append items to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.update(cmd, func(q queue.Sequence) error {
				for _, item := range args {
					q.Put(item)
				}
				return nil
			})
		},
	}
}

func (o *options) pullCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Remove an item from the queue and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.update(cmd, func(q queue.Sequence) error {
				item, err := q.Pull(index)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), item)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "position of the item; negative counts from the end")
	return cmd
}

func (o *options) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "Print the items in the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.view(cmd, func(q queue.Sequence) error {
				return q.Iter(func(item interface{}) error {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), item)
					return err
				})
			})
		},
	}
}

func (o *options) lenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "len",
		Short: "Print the number of items in the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.view(cmd, func(q queue.Sequence) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), q.Len())
				return err
			})
		},
	}
}

type session struct {
	db      *store.DB
	persist file.Persist
	log     *zap.Logger
}

func (o *options) open(cmd *cobra.Command) (*session, error) {
	log, err := logging.NewLogger(o.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	p, err := file.NewPersistForPath(o.dir)
	if err != nil {
		return nil, err
	}
	head, err := p.LoadHead()
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	db, err := store.Open(cmd.Context(), store.Config{
		Persist:   p,
		ItemsLike: "",
		Logger:    log,
	}, head)
	if err != nil {
		return nil, err
	}
	return &session{db: db, persist: p, log: log}, nil
}

func (o *options) newQueue() queue.Persistent {
	if o.flat {
		return queue.NewQueue()
	}
	return queue.NewCompositeQueue(queue.WithTargetBucketSize(o.bucketSize))
}

func (o *options) root(ctx context.Context, txn *store.Txn, create bool) (queue.Sequence, error) {
	obj, err := txn.Root(ctx, o.queue)
	if errors.Is(err, store.ErrNotFound) {
		if !create {
			return queue.NewQueue(), nil
		}
		obj = o.newQueue()
		if err := txn.SetRoot(o.queue, obj); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	seq, ok := obj.(queue.Sequence)
	if !ok {
		return nil, fmt.Errorf("%q is a %s, not a queue", o.queue, obj.Kind())
	}
	return seq, nil
}

// update applies f to the queue in a transaction and saves the new head.
func (o *options) update(cmd *cobra.Command, f func(queue.Sequence) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer s.log.Sync()
	ctx := cmd.Context()
	before := s.db.Head()
	err = s.db.Update(ctx, func(txn *store.Txn) error {
		q, err := o.root(ctx, txn, true)
		if err != nil {
			return err
		}
		return f(q)
	})
	if err != nil {
		return err
	}
	head := s.db.Head()
	if head == before {
		return nil
	}
	s.log.Info("committed", zap.String("queue", o.queue), zap.String("head", head))
	return s.persist.StoreHead(head)
}

func (o *options) view(cmd *cobra.Command, f func(queue.Sequence) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer s.log.Sync()
	txn := s.db.Begin()
	defer txn.Abort()
	q, err := o.root(cmd.Context(), txn, false)
	if err != nil {
		return err
	}
	return f(q)
}
