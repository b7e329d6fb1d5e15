package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	cmdUtil "github.com/sphagnumdb/sphagnum/cmd/util"
	"github.com/sphagnumdb/sphagnum/lib/db"
	"github.com/sphagnumdb/sphagnum/lib/db/engines/moss"
	"github.com/sphagnumdb/sphagnum/lib/hlc"
	"github.com/sphagnumdb/sphagnum/lib/passport"
	"github.com/sphagnumdb/sphagnum/lib/path"
	"github.com/sphagnumdb/sphagnum/lib/ring"
	"github.com/sphagnumdb/sphagnum/lib/seed"
	"github.com/sphagnumdb/sphagnum/lib/store"
	"github.com/sphagnumdb/sphagnum/lib/store/dstore"
	"github.com/sphagnumdb/sphagnum/lib/store/lstore"
	"github.com/sphagnumdb/sphagnum/rpc/common"
	"github.com/sphagnumdb/sphagnum/rpc/server"
)

var log = logger.GetLogger("serve")

const leaveTimeout = 5 * time.Second

// run starts the Seed and blocks until the process is interrupted
func run(_ *cobra.Command, _ []string) error {
	c := serveConfig
	if err := common.InitLoggers(c.Server.LogLevel); err != nil {
		return err
	}

	ser, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	serverTransport, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}
	newClientTransport, err := cmdUtil.GetTransportFactory()
	if err != nil {
		return err
	}

	// STORE

	clock := hlc.New()
	dbFactory := func() db.KVDB {
		opts := moss.DefaultOptions()
		opts.TombstoneTTL = hlc.Ticks(c.TombstoneTTL)
		return moss.NewMossDB(opts)
	}

	var st store.IStore
	switch c.Mode {
	case passport.ModeRaft:
		nh, err := startRaft(c, dbFactory)
		if err != nil {
			return err
		}
		defer nh.Close()
		st = dstore.NewDistributedStore(nh, ring.FieldID(c.Field), c.Raft.ReplicaID, c.Server.Timeout(), clock)
	default:
		local := lstore.NewLocalStore(dbFactory, clock)
		defer local.Close()
		st = local
	}

	// MESH

	local := passport.New(c.Field, c.Advertise, c.Mode)
	local.Version = cmdUtil.Version
	mesh, err := path.NewMesh(c.Mesh, *local)
	if err != nil {
		return err
	}
	defer func() {
		if err := mesh.Leave(leaveTimeout); err != nil {
			log.Warningf("failed to leave the mesh: %v", err)
		}
		_ = mesh.Shutdown()
	}()

	if local.RPCAddr == "" {
		host, _, err := net.SplitHostPort(mesh.Addr())
		if err != nil {
			return err
		}
		local.RPCAddr = advertiseAddr("", c.Server.Transport.Endpoint, host)
		if err := mesh.UpdatePassport(*local); err != nil {
			return err
		}
	}
	if err := local.Validate(); err != nil {
		return err
	}

	pool := path.NewPool(c.Client, newClientTransport, ser)
	defer pool.Close()

	// SEED

	sd, err := seed.New(c.Seed, st, mesh, pool)
	if err != nil {
		return err
	}
	srv := server.NewRPCServer(c.Server, serverTransport, ser)
	sd.Register(srv)

	log.Infof("%s", local)
	log.Infof("%s", c.Seed.String())

	if _, err := mesh.Join(c.Mesh.Join); err != nil {
		// the Seed still serves its own Field; others can join through it later
		log.Warningf("%v", err)
	}

	sd.Start()
	defer sd.Stop()

	if c.MetricsEndpoint != "" {
		ms := serveMetrics(c.MetricsEndpoint, sd)
		defer ms.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Infof("shutting down seed %s", local.SeedID)
		if err := srv.Close(); err != nil {
			log.Errorf("failed to close rpc server: %v", err)
		}
	}()

	return srv.Serve()
}

// startRaft starts the NodeHost and the replica of the raft group of the Field
func startRaft(c *Config, dbFactory store.DBFactory) (*dragonboat.NodeHost, error) {
	log.Infof("%s", c.Raft.String())

	nh, err := dragonboat.NewNodeHost(c.Raft.ToNodeHostConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create node host: %w", err)
	}

	shardID := ring.FieldID(c.Field)
	if err := nh.StartConcurrentReplica(
		c.Raft.ClusterMembers,
		false,
		dstore.CreateStateMachineFactory(dbFactory),
		c.Raft.ToDragonboatConfig(shardID),
	); err != nil {
		nh.Close()
		return nil, fmt.Errorf("failed to start raft group of field %s: %w", c.Field, err)
	}
	return nh, nil
}

// serveMetrics exposes the metrics of the Seed and the process in Prometheus format
func serveMetrics(addr string, sd *seed.Seed) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		sd.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})

	ms := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("metrics on http://%s/metrics", addr)
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics endpoint failed: %v", err)
		}
	}()
	return ms
}
