// Package kubernetes reads prebuilt rule packages from ConfigMaps.
package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"sort"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	domainpack "github.com/felixgeelhaar/ruleup/domain/pack"
	"github.com/felixgeelhaar/ruleup/infrastructure/pack"
)

// Annotations that name and version the package of a ConfigMap.
const (
	AnnotationPackageName    = "ruleup.io/package-name"
	AnnotationPackageVersion = "ruleup.io/package-version"
)

// DefaultLabelSelector selects prebuilt rule ConfigMaps.
const DefaultLabelSelector = "ruleup.io/prebuilt-rules=true"

// Config configures a ConfigMap source.
type Config struct {
	Namespace     string
	LabelSelector string

	// Kubeconfig is a kubeconfig path; empty uses the in-cluster config.
	Kubeconfig string
}

// Source treats every data key of the selected ConfigMaps as an asset
// document named by the key.
type Source struct {
	client    kubernetes.Interface
	namespace string
	selector  string
}

// New creates a source on an existing clientset.
func New(client kubernetes.Interface, namespace, selector string) *Source {
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	if selector == "" {
		selector = DefaultLabelSelector
	}
	return &Source{client: client, namespace: namespace, selector: selector}
}

// NewFromConfig builds a clientset from cfg and creates a source.
func NewFromConfig(cfg Config) (*Source, error) {
	var restCfg *rest.Config
	var err error
	if cfg.Kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	return New(client, cfg.Namespace, cfg.LabelSelector), nil
}

// Name implements pack.Source.
func (s *Source) Name() string {
	return fmt.Sprintf("kubernetes:%s/%s", s.namespace, s.selector)
}

// Fetch implements pack.Source.
func (s *Source) Fetch(ctx context.Context) (*domainpack.Pack, error) {
	list, err := s.client.CoreV1().ConfigMaps(s.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: s.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("list configmaps: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("%w: no configmaps match %s", domainpack.ErrPackNotFound, s.Name())
	}

	name, version := "kubernetes", ""
	var files []pack.File
	var errs []error
	for _, cm := range list.Items {
		if v := cm.Annotations[AnnotationPackageName]; v != "" {
			name = v
		}
		if v := cm.Annotations[AnnotationPackageVersion]; v != "" {
			version = v
		}

		keys := make([]string, 0, len(cm.Data)+len(cm.BinaryData))
		for k := range cm.Data {
			keys = append(keys, k)
		}
		for k := range cm.BinaryData {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if !pack.IsAssetFile(k) {
				errs = append(errs, fmt.Errorf("configmap %s key %s: %w", cm.Name, k, domainpack.ErrUnsupportedFormat))
				continue
			}
			data, ok := cm.BinaryData[k]
			if !ok {
				data = []byte(cm.Data[k])
			}
			files = append(files, pack.File{Name: cm.Name + "/" + k, Data: data})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	p, err := pack.Build(name, files)
	if err != nil {
		return nil, err
	}
	if version != "" {
		p.Version = version
	}
	return p, nil
}

var _ domainpack.Source = (*Source)(nil)
