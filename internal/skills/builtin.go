package skills

// Tools the built-in skills shell out to.
const (
	ToolKubectl = "kubectl"
	ToolDocker  = "docker"
	ToolAWS     = "aws"
)

// DefaultDebugImage is the image used for ephemeral debug pods.
const DefaultDebugImage = "nicolaka/netshoot"

var namespaceParam = Param{Name: "namespace", Description: "Kubernetes namespace", Default: "default"}

func k8sSkills() []*Skill {
	return []*Skill{
		{
			Name:        "pods",
			Description: "List pods in a namespace",
			Tool:        ToolKubectl,
			Template:    "kubectl get pods -n ${namespace} -o wide",
			Params:      []Param{namespaceParam},
		},
		{
			Name:        "logs",
			Description: "Show the last lines of a pod's logs",
			Tool:        ToolKubectl,
			Template:    "kubectl logs ${pod} -n ${namespace} --tail=${tail}",
			Params: []Param{
				{Name: "pod", Description: "Pod name", Required: true},
				namespaceParam,
				{Name: "tail", Description: "Number of lines", Default: "100"},
			},
		},
		{
			Name:        "debug",
			Description: "Start an ephemeral debug pod that exits after ttl_seconds",
			Tool:        ToolKubectl,
			Template:    "kubectl run ${pod} -n ${namespace} --image=${image} --restart=Never --labels=app.kubernetes.io/managed-by=cmdkit --command -- sleep ${ttl_seconds}",
			Params: []Param{
				{Name: "pod", Description: "Debug pod name", Default: "cmdkit-debug"},
				namespaceParam,
				{Name: "image", Description: "Container image", Default: DefaultDebugImage},
				{Name: "ttl_seconds", Description: "Seconds before the pod exits on its own", Default: "3600"},
			},
		},
		{
			Name:        "wait_ready",
			Description: "Wait until a pod reports Ready",
			Tool:        ToolKubectl,
			Template:    "kubectl wait --for=condition=Ready pod/${pod} -n ${namespace} --timeout=${timeout}",
			Params: []Param{
				{Name: "pod", Description: "Pod name", Required: true},
				namespaceParam,
				{Name: "timeout", Description: "kubectl duration", Default: "120s"},
			},
		},
		{
			Name:        "delete_pod",
			Description: "Delete a pod without waiting for termination",
			Tool:        ToolKubectl,
			Template:    "kubectl delete pod ${pod} -n ${namespace} --ignore-not-found --wait=false",
			Params: []Param{
				{Name: "pod", Description: "Pod name", Required: true},
				namespaceParam,
			},
		},
	}
}

func dockerSkills() []*Skill {
	return []*Skill{
		{
			Name:        "ps",
			Description: "List running containers",
			Tool:        ToolDocker,
			Template:    `docker ps --format "table {{.ID}}\t{{.Image}}\t{{.Status}}\t{{.Names}}"`,
		},
		{
			Name:        "logs",
			Description: "Show the last lines of a container's logs",
			Tool:        ToolDocker,
			Template:    "docker logs --tail ${tail} ${container}",
			Params: []Param{
				{Name: "container", Description: "Container name or id", Required: true},
				{Name: "tail", Description: "Number of lines", Default: "100"},
			},
		},
	}
}

func awsSkills() []*Skill {
	profile := Param{Name: "profile", Description: "AWS CLI profile", Default: "default"}
	return []*Skill{
		{
			Name:        "whoami",
			Description: "Show the caller identity of a profile",
			Tool:        ToolAWS,
			Template:    "aws sts get-caller-identity --output json --profile ${profile}",
			Params:      []Param{profile},
		},
		{
			Name:        "s3.ls",
			Description: "List buckets, or objects under an s3:// path",
			Tool:        ToolAWS,
			Template:    "aws s3 ls ${path} --profile ${profile}",
			Params: []Param{
				{Name: "path", Description: "s3:// URI", Default: "s3://"},
				profile,
			},
		},
	}
}

// RegisterBuiltins registers the kubectl, docker and aws skills.
func RegisterBuiltins(reg *Registry) error {
	namespaces := []struct {
		prefix string
		skills []*Skill
	}{
		{"k8s", k8sSkills()},
		{"docker", dockerSkills()},
		{"aws", awsSkills()},
	}
	for _, ns := range namespaces {
		if _, err := reg.RegisterNamespace(ns.prefix, ns.skills); err != nil {
			return err
		}
	}
	return nil
}
