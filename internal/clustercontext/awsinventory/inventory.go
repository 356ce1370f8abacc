// Package awsinventory builds a clustercontext.ClusterContext snapshot
// from EC2's live instance inventory: each running instance whose instance
// type could be described becomes a node, sized from the EC2 instance-type catalog,
// with a bandwidth graph estimated from AWS's network topology tiers
// (same availability zone, cross-AZ same region, cross-region) since live
// bandwidth measurement between instances is out of scope — the same
// stance internal/clustercontext/k8sadapter takes.
package awsinventory

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	awscfg "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/edgerun/skippy/internal/skippy/clustercontext"
	"github.com/edgerun/skippy/internal/skippy/model"
)

// Bandwidth tiers in bytes/sec, modeling typical achievable throughput for
// each network distance class rather than AWS's list price (costreport
// handles price separately). These are hardcoded estimates and may not
// reflect a specific instance family's actual NIC allocation.
const (
	sameAZBandwidth      = 1_250_000_000 // ~10 Gbps, same availability zone
	crossAZBandwidth     = 625_000_000   // ~5 Gbps, cross-AZ within a region
	crossRegionBandwidth = 125_000_000   // ~1 Gbps, cross-region
	registryBandwidth    = 62_500_000    // ~500 Mbps, registry pull over the public internet
)

// Tag keys copied verbatim onto the node's label map, the same prefix
// convention model.go's locality/capability labels use.
const (
	tagLocalityType = "locality.skippy.io/type"
)

// ec2Client is the subset of *ec2.Client Builder depends on, narrowed so
// tests can supply a fake without standing up a real EC2 endpoint.
type ec2Client interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
}

// Builder builds node inventory snapshots from EC2.
type Builder struct {
	log    logr.Logger
	client ec2Client
	region string
}

// NewBuilder builds a Builder from an AWS SDK config.
func NewBuilder(log logr.Logger, cfg awscfg.Config) *Builder {
	return &Builder{log: log, client: ec2.NewFromConfig(cfg), region: cfg.Region}
}

// Build describes all running instances and their instance types, and
// assembles a MemoryClusterContext from them.
func (b *Builder) Build(ctx context.Context) (*clustercontext.MemoryClusterContext, error) {
	instances, err := b.describeRunningInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("describing instances: %w", err)
	}
	if len(instances) == 0 {
		return clustercontext.NewMemoryClusterContext(b.log, nil, nil, clustercontext.BandwidthGraph{clustercontext.RegistryNode: {}}, nil), nil
	}

	types := uniqueInstanceTypes(instances)
	specs, err := b.describeInstanceTypes(ctx, types)
	if err != nil {
		return nil, fmt.Errorf("describing instance types: %w", err)
	}

	nodes := make([]*model.Node, 0, len(instances))
	azByNode := make(map[string]string, len(instances))
	for _, inst := range instances {
		spec, ok := specs[string(inst.InstanceType)]
		if !ok {
			b.log.V(1).Info("skipping instance with unknown instance type spec", "instance", stringVal(inst.InstanceId), "type", inst.InstanceType)
			continue
		}
		node := translateInstance(&inst, spec)
		nodes = append(nodes, node)
		if inst.Placement != nil {
			azByNode[node.Name] = stringVal(inst.Placement.AvailabilityZone)
		}
	}

	bandwidth := buildBandwidthGraph(nodes, azByNode)
	mcc := clustercontext.NewMemoryClusterContext(b.log, nodes, nil, bandwidth, nil)
	b.log.V(1).Info("built cluster context from aws", "nodes", len(nodes), "region", b.region)
	return mcc, nil
}

func (b *Builder) describeRunningInstances(ctx context.Context) ([]ec2types.Instance, error) {
	var out []ec2types.Instance
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: awscfg.String("instance-state-name"), Values: []string{"running"}},
		},
	}
	paginator := ec2.NewDescribeInstancesPaginator(b.client, input)
	const maxPages = 200
	for page := 0; paginator.HasMorePages() && page < maxPages; page++ {
		out2, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range out2.Reservations {
			out = append(out, r.Instances...)
		}
	}
	return out, nil
}

type instanceTypeSpec struct {
	cpuMillis int64
	memBytes  int64
	arch      string
}

func uniqueInstanceTypes(instances []ec2types.Instance) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, inst := range instances {
		t := string(inst.InstanceType)
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func (b *Builder) describeInstanceTypes(ctx context.Context, types []string) (map[string]instanceTypeSpec, error) {
	specs := make(map[string]instanceTypeSpec, len(types))

	const batchSize = 100 // DescribeInstanceTypes accepts at most 100 per call
	for i := 0; i < len(types); i += batchSize {
		end := i + batchSize
		if end > len(types) {
			end = len(types)
		}
		batch := types[i:end]

		its := make([]ec2types.InstanceType, len(batch))
		for j, t := range batch {
			its[j] = ec2types.InstanceType(t)
		}

		resp, err := b.client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{InstanceTypes: its})
		if err != nil {
			return nil, err
		}
		for _, it := range resp.InstanceTypes {
			spec := instanceTypeSpec{arch: "amd64"}
			if it.VCpuInfo != nil && it.VCpuInfo.DefaultVCpus != nil {
				spec.cpuMillis = int64(*it.VCpuInfo.DefaultVCpus) * 1000
			}
			if it.MemoryInfo != nil && it.MemoryInfo.SizeInMiB != nil {
				spec.memBytes = *it.MemoryInfo.SizeInMiB * 1024 * 1024
			}
			if it.ProcessorInfo != nil {
				for _, a := range it.ProcessorInfo.SupportedArchitectures {
					if a == ec2types.ArchitectureTypeArm64 {
						spec.arch = "arm64"
						break
					}
				}
			}
			specs[string(it.InstanceType)] = spec
		}
	}
	return specs, nil
}

func translateInstance(inst *ec2types.Instance, spec instanceTypeSpec) *model.Node {
	name := stringVal(inst.InstanceId)
	for _, tag := range inst.Tags {
		if tag.Key != nil && *tag.Key == "Name" && tag.Value != nil && *tag.Value != "" {
			name = *tag.Value
			break
		}
	}

	labels := map[string]string{model.LabelArch: spec.arch}
	for _, tag := range inst.Tags {
		if tag.Key == nil || tag.Value == nil {
			continue
		}
		if *tag.Key == tagLocalityType {
			labels[tagLocalityType] = *tag.Value
		}
	}
	if _, ok := labels[tagLocalityType]; !ok {
		labels[tagLocalityType] = "cloud"
	}

	capacity := model.Capacity{CPUMillis: spec.cpuMillis, Memory: spec.memBytes}
	return &model.Node{
		Name:        name,
		Capacity:    capacity,
		Allocatable: capacity,
		Labels:      labels,
	}
}

// buildBandwidthGraph estimates bytes/sec between every node pair from
// their availability zones, and from the registry to every node.
func buildBandwidthGraph(nodes []*model.Node, azByNode map[string]string) clustercontext.BandwidthGraph {
	graph := make(clustercontext.BandwidthGraph, len(nodes)+1)

	registryRow := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		registryRow[n.Name] = registryBandwidth
	}
	graph[clustercontext.RegistryNode] = registryRow

	for _, from := range nodes {
		row := make(map[string]float64, len(nodes)+1)
		row[clustercontext.RegistryNode] = registryBandwidth
		for _, to := range nodes {
			if from.Name == to.Name {
				continue
			}
			row[to.Name] = bandwidthBetween(azByNode[from.Name], azByNode[to.Name])
		}
		graph[from.Name] = row
	}
	return graph
}

func bandwidthBetween(azFrom, azTo string) float64 {
	if azFrom == "" || azTo == "" {
		return crossRegionBandwidth
	}
	if azFrom == azTo {
		return sameAZBandwidth
	}
	if sameRegion(azFrom, azTo) {
		return crossAZBandwidth
	}
	return crossRegionBandwidth
}

// sameRegion compares AZ strings by their region prefix: "us-east-1a" and
// "us-east-1b" share "us-east-1".
func sameRegion(a, b string) bool {
	return regionOf(a) == regionOf(b)
}

func regionOf(az string) string {
	if len(az) == 0 {
		return ""
	}
	last := az[len(az)-1]
	if last >= 'a' && last <= 'z' {
		return az[:len(az)-1]
	}
	return az
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
